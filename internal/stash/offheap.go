package stash

import (
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// offHeapBackend persists the keyspace in a memory-mapped-file-backed
// B+tree (bbolt), giving the off-heap stash variant real page-mapped
// storage instead of a hand-rolled mmap routine — grounded in the pack's
// own bbolt-backed cache (_examples/leonardcser-web-mcp/internal/cache).
//
// bbolt has no concept of a key being concurrently dropped out from under
// an in-flight transaction the way the Java original's HTreeMap does, so
// the close race this backend defends against is purely about this
// process's own DROP tearing down the *bolt.DB while another goroutine's
// command is mid-flight against it (the stripe lock does not protect
// against DROP since DROP removes the whole stash, not one key).
type offHeapBackend struct {
	db     *bolt.DB
	bucket []byte
	path   string
	closed atomic.Bool
}

var bucketName = []byte("stash")

func newOffHeapBackend(path string) (*offHeapBackend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &offHeapBackend{db: db, bucket: bucketName, path: path}, nil
}

func (b *offHeapBackend) Get(key string) ([]byte, bool, error) {
	if b.closed.Load() {
		return nil, false, ErrBackendClosed
	}
	var (
		value []byte
		ok    bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		ok = true
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, translateBoltErr(err)
	}
	return value, ok, nil
}

func (b *offHeapBackend) Has(key string) (bool, error) {
	_, ok, err := b.Get(key)
	return ok, err
}

func (b *offHeapBackend) Put(key string, value []byte) error {
	if b.closed.Load() {
		return ErrBackendClosed
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), value)
	})
	return translateBoltErr(err)
}

func (b *offHeapBackend) Delete(key string) error {
	if b.closed.Load() {
		return ErrBackendClosed
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
	return translateBoltErr(err)
}

func (b *offHeapBackend) Len() (int, error) {
	if b.closed.Load() {
		return 0, ErrBackendClosed
	}
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, translateBoltErr(err)
	}
	return n, nil
}

func (b *offHeapBackend) Range(fn func(key string, value []byte) bool) error {
	if b.closed.Load() {
		return ErrBackendClosed
	}
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(string(k), v) {
				break
			}
		}
		return nil
	})
	return translateBoltErr(err)
}

func (b *offHeapBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

// translateBoltErr maps bbolt's own closed-database error into the
// backend-wide sentinel so Stash has one error to check regardless of
// which variant backs it.
func translateBoltErr(err error) error {
	if err == nil {
		return nil
	}
	if err == bolt.ErrDatabaseNotOpen || err == bolt.ErrTxClosed {
		return ErrBackendClosed
	}
	return err
}

package stash

import "github.com/puzpuzpuz/xsync/v3"

// onHeapBackend keeps the keyspace in a lock-free concurrent map, the same
// data structure the teacher's maple engine uses for its per-shard data
// (xsync.MapOf). There is no sharding here — the stripe locks above this
// backend already bound lock contention — so a single map suffices.
type onHeapBackend struct {
	data *xsync.MapOf[string, []byte]
}

func newOnHeapBackend() *onHeapBackend {
	return &onHeapBackend{data: xsync.NewMapOf[string, []byte]()}
}

func (b *onHeapBackend) Get(key string) ([]byte, bool, error) {
	v, ok := b.data.Load(key)
	return v, ok, nil
}

func (b *onHeapBackend) Has(key string) (bool, error) {
	_, ok := b.data.Load(key)
	return ok, nil
}

func (b *onHeapBackend) Put(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data.Store(key, cp)
	return nil
}

func (b *onHeapBackend) Delete(key string) error {
	b.data.Delete(key)
	return nil
}

func (b *onHeapBackend) Len() (int, error) {
	return b.data.Size(), nil
}

func (b *onHeapBackend) Range(fn func(key string, value []byte) bool) error {
	b.data.Range(func(k string, v []byte) bool {
		return fn(k, v)
	})
	return nil
}

func (b *onHeapBackend) Close() error {
	return nil
}

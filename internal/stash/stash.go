package stash

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/sstasherr"
	"github.com/sstash/sstash/internal/ttlwheel"
)

const (
	// MaxKeyLen bounds how large a key may be, mirroring the original's
	// rejection of oversized keys before they ever reach the backend.
	MaxKeyLen = 256
	// MaxValueLen bounds a single value.
	MaxValueLen = 64 * 1024
	// MaxNameLen bounds a stash's own name.
	MaxNameLen = 64

	// DefaultStripeCount is used when Options.StripeCount is left zero.
	DefaultStripeCount = 16
)

// Stash is one named keyspace: a Backend (on-heap or off-heap) plus the
// TTL metadata and locking needed to make every operation atomic per key.
// Locking is striped rather than global so unrelated keys never contend,
// matching the maple engine's per-shard locking in the teacher.
type Stash struct {
	Name        string
	MaxKeyCount int
	OffHeap     bool

	backend Backend
	ttl     *ttlwheel.Wheel
	stripes []sync.Mutex
	log     *logging.Logger

	backupDirty atomic.Bool
	closed      atomic.Bool
}

// Options configures a new Stash.
type Options struct {
	Name        string
	MaxKeyCount int
	OffHeap     bool
	// DataPath is the bbolt file path; required when OffHeap is true.
	DataPath string
	// StripeCount overrides the lock-stripe width; 0 uses DefaultStripeCount.
	StripeCount int
	Logger      *logging.Logger
}

func New(opts Options) (*Stash, error) {
	var (
		backend Backend
		err     error
	)
	if opts.OffHeap {
		backend, err = newOffHeapBackend(opts.DataPath)
		if err != nil {
			return nil, err
		}
	} else {
		backend = newOnHeapBackend()
	}
	log := opts.Logger
	if log == nil {
		log = logging.New("stash", logging.Info)
	}
	stripeCount := opts.StripeCount
	if stripeCount <= 0 {
		stripeCount = DefaultStripeCount
	}
	return &Stash{
		Name:        opts.Name,
		MaxKeyCount: opts.MaxKeyCount,
		OffHeap:     opts.OffHeap,
		backend:     backend,
		ttl:         ttlwheel.New(),
		stripes:     make([]sync.Mutex, stripeCount),
		log:         log.Named(opts.Name),
	}, nil
}

func (s *Stash) stripeOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}

func (s *Stash) lockFor(key string) *sync.Mutex {
	return &s.stripes[s.stripeOf(key)]
}

func validateKey(key string) error {
	if len(key) == 0 {
		return sstasherr.Protocol("key must not be empty")
	}
	if len(key) > MaxKeyLen {
		return sstasherr.KeyTooLong(key)
	}
	return nil
}

func validateValue(value []byte) error {
	if len(value) > MaxValueLen {
		return sstasherr.ValueTooLong(len(value))
	}
	return nil
}

// Set stores key=value with no expiration, clearing any previous TTL.
// after, if non-nil, runs under the same stripe lock as the mutation so
// a caller (the dispatcher) can enqueue replication forwarding with the
// same per-key ordering guarantee as the local write.
func (s *Stash) Set(key string, value []byte, after func()) error {
	return s.setWithTTL(key, value, 0, after)
}

// SetWithTTL stores key=value, expiring after ttlMs milliseconds.
func (s *Stash) SetWithTTL(key string, value []byte, ttlMs uint64, after func()) error {
	return s.setWithTTL(key, value, ttlMs, after)
}

func (s *Stash) setWithTTL(key string, value []byte, ttlMs uint64, after func()) error {
	if s.closed.Load() {
		return sstasherr.StashClosed(s.Name)
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.backend.Has(key)
	if err != nil {
		return translateClosed(s.Name, err)
	}
	if !exists && s.MaxKeyCount > 0 {
		n, err := s.backend.Len()
		if err != nil {
			return translateClosed(s.Name, err)
		}
		if n >= s.MaxKeyCount {
			return sstasherr.CapacityFull(s.Name)
		}
	}

	if err := s.backend.Put(key, value); err != nil {
		return translateClosed(s.Name, err)
	}
	if ttlMs > 0 {
		s.ttl.Add(key, ttlMs)
	} else {
		s.ttl.Remove(key)
	}
	s.backupDirty.Store(true)

	if after != nil {
		after()
	}
	return nil
}

// Get returns a key's value. When readOnly is false and the key has
// expired, Get lazily deletes it before reporting a miss — the same
// lazy-expiry semantics the original engine uses on its read path.
// Reads against a read-only port pass readOnly=true, so an expired but
// not-yet-swept key is reported as a miss without being deleted.
func (s *Stash) Get(key string, readOnly bool) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, sstasherr.StashClosed(s.Name)
	}
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if s.ttl.IsExpired(key) {
		if !readOnly {
			_ = s.backend.Delete(key)
			s.ttl.Remove(key)
			s.backupDirty.Store(true)
		}
		return nil, false, nil
	}

	v, ok, err := s.backend.Get(key)
	if err != nil {
		return nil, false, translateClosed(s.Name, err)
	}
	return v, ok, nil
}

// Delete removes a key unconditionally. Deleting an absent key is not an
// error — matching SET's idempotent-overwrite spirit.
func (s *Stash) Delete(key string, after func()) error {
	if s.closed.Load() {
		return sstasherr.StashClosed(s.Name)
	}
	if err := validateKey(key); err != nil {
		return err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := s.backend.Delete(key); err != nil {
		return translateClosed(s.Name, err)
	}
	s.ttl.Remove(key)
	s.backupDirty.Store(true)

	if after != nil {
		after()
	}
	return nil
}

// UpdateTTL changes the expiration of an existing key without touching
// its value. A ttlMs of 0 clears expiration, making the key permanent.
// Updating an absent (or already expired) key reports ok=false rather
// than an error, since "no such key" is not a protocol violation.
func (s *Stash) UpdateTTL(key string, ttlMs uint64, after func()) (ok bool, err error) {
	if s.closed.Load() {
		return false, sstasherr.StashClosed(s.Name)
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if s.ttl.IsExpired(key) {
		_ = s.backend.Delete(key)
		s.ttl.Remove(key)
		return false, nil
	}

	exists, err := s.backend.Has(key)
	if err != nil {
		return false, translateClosed(s.Name, err)
	}
	if !exists {
		return false, nil
	}

	if ttlMs > 0 {
		s.ttl.Add(key, ttlMs)
	} else {
		s.ttl.Remove(key)
	}
	s.backupDirty.Store(true)

	if after != nil {
		after()
	}
	return true, nil
}

// ExpireDue sweeps and removes keys whose TTL has elapsed, up to the
// wheel's bounded per-call limit. Candidates are gathered without a
// stripe lock, then each one is re-checked (double-checked, matching
// Get's pattern) under its own stripe lock immediately before deleting,
// so a concurrent Set/SetWithTTL that rewrites the key between the peek
// and the delete is never clobbered by the sweep.
func (s *Stash) ExpireDue() int {
	candidates := s.ttl.PeekDue()
	var removed int
	for _, key := range candidates {
		lock := s.lockFor(key)
		lock.Lock()
		if s.ttl.RemoveIfStillDue(key) {
			_ = s.backend.Delete(key)
			removed++
		}
		lock.Unlock()
	}
	if removed > 0 {
		s.backupDirty.Store(true)
	}
	return removed
}

// KeyCount reports the live key count, used by INFO and the metrics
// key-count gauge.
func (s *Stash) KeyCount() (int, error) {
	if s.closed.Load() {
		return 0, sstasherr.StashClosed(s.Name)
	}
	return s.backend.Len()
}

// Dirty reports whether any mutation has occurred since the last
// snapshot write cleared the flag.
func (s *Stash) Dirty() bool {
	return s.backupDirty.Load()
}

// ClearDirty resets the dirty flag; called by the snapshot writer right
// after a successful commit.
func (s *Stash) ClearDirty() {
	s.backupDirty.Store(false)
}

// Range iterates every live, non-expired entry along with its absolute
// expiration timestamp (0 meaning no expiry). Used by the snapshot
// writer to serialize a fuzzy point-in-time copy of the stash.
func (s *Stash) Range(fn func(key string, value []byte, expiresAtMs uint64) bool) error {
	if s.closed.Load() {
		return sstasherr.StashClosed(s.Name)
	}
	return s.backend.Range(func(key string, value []byte) bool {
		if s.ttl.IsExpired(key) {
			return true
		}
		return fn(key, value, s.ttl.ExpirationOf(key))
	})
}

// Restore loads a single record back into the stash, used only during
// snapshot replay at startup before the stash is exposed to clients.
func (s *Stash) Restore(key string, value []byte, expiresAtMs uint64) {
	_ = s.backend.Put(key, value)
	if expiresAtMs > 0 {
		s.ttl.AddAt(key, expiresAtMs)
	}
}

// Close releases the underlying backend. Once closed, every operation
// returns sstasherr.CodeStashClosed.
func (s *Stash) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.backend.Close()
}

func translateClosed(name string, err error) error {
	if err == ErrBackendClosed {
		return sstasherr.StashClosed(name)
	}
	return err
}

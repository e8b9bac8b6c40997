// Package manager owns the directory of named stashes: creation, lookup,
// drop, and the shared TTL sweep that runs across every stash it holds.
package manager

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/sstasherr"
	"github.com/sstash/sstash/internal/stash"
)

// DefaultStashName is the stash used when a command carries no NAME
// option.
const DefaultStashName = "default"

// MaxStashCount bounds how many stashes a single manager may hold,
// carried over from the Java original's StashManager.MAX_NUM_STASHES.
const MaxStashCount = 100

// MaxNameLen bounds a stash's own name.
const MaxNameLen = stash.MaxNameLen

// Config controls manager construction.
type Config struct {
	// DataDir is where off-heap stash files and snapshots live.
	DataDir string
	// DefaultMaxKeyCount bounds the default stash. Stashes made by CREATE
	// use the max_key_count the command carries.
	DefaultMaxKeyCount int
	// StripeCount sets the lock-stripe width for every stash this
	// manager creates; 0 uses stash.DefaultStripeCount.
	StripeCount int
	Logger      *logging.Logger
}

// Manager is a concurrent directory of stashes. Safe for concurrent use
// by every connection goroutine.
type Manager struct {
	mu      sync.RWMutex
	stashes map[string]*stash.Stash

	dataDir        string
	defaultMaxKeys int
	stripeCount    int
	log            *logging.Logger
}

// New constructs a Manager and eagerly creates the default stash, the
// same way the Java original's constructor does before returning.
func New(cfg Config) (*Manager, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.New("manager", logging.Info)
	}
	m := &Manager{
		stashes:        make(map[string]*stash.Stash),
		dataDir:        cfg.DataDir,
		defaultMaxKeys: cfg.DefaultMaxKeyCount,
		stripeCount:    cfg.StripeCount,
		log:            log.Named("manager"),
	}
	if _, _, err := m.createLocked(DefaultStashName, false, cfg.DefaultMaxKeyCount); err != nil {
		return nil, fmt.Errorf("creating default stash: %w", err)
	}
	return m, nil
}

func (m *Manager) dataPathFor(name string) string {
	return filepath.Join(m.dataDir, name+".bolt")
}

// Create adds a new stash. Matching the Java original, creating a name
// that already exists is not an error — it's a no-op returning the
// existing stash's current parameters are left untouched.
func (m *Manager) Create(name string, offHeap bool, maxKeyCount int) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return sstasherr.NameTooLong(name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, err := m.createLocked(name, offHeap, maxKeyCount)
	return err
}

func (m *Manager) createLocked(name string, offHeap bool, maxKeyCount int) (*stash.Stash, bool, error) {
	if existing, ok := m.stashes[name]; ok {
		return existing, false, nil
	}
	if len(m.stashes) >= MaxStashCount {
		return nil, false, sstasherr.ErrManagerFull
	}
	s, err := stash.New(stash.Options{
		Name:        name,
		MaxKeyCount: maxKeyCount,
		OffHeap:     offHeap,
		DataPath:    m.dataPathFor(name),
		StripeCount: m.stripeCount,
		Logger:      m.log,
	})
	if err != nil {
		return nil, false, sstasherr.Internal("creating stash %s: %v", name, err)
	}
	m.stashes[name] = s
	m.log.Infof("created stash %s (off_heap=%v max_key_count=%d)", name, offHeap, maxKeyCount)
	return s, true, nil
}

// Get returns the named stash, or a no-such-stash error.
func (m *Manager) Get(name string) (*stash.Stash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stashes[name]
	if !ok {
		return nil, sstasherr.NoSuchStash(name)
	}
	return s, nil
}

// Drop removes and closes a stash. The default stash may never be
// dropped. Dropping an absent name is a no-op, mirroring the Java
// original's dropStash.
func (m *Manager) Drop(name string) error {
	if name == DefaultStashName {
		return sstasherr.ErrCannotDropDefault
	}
	m.mu.Lock()
	s, ok := m.stashes[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.stashes, name)
	m.mu.Unlock()

	return s.Close()
}

// Restore creates (or reuses) a stash for snapshot replay at startup,
// bypassing the stash-count cap check error path since this is
// reconstructing prior state rather than accepting new client input.
func (m *Manager) Restore(name string, offHeap bool, maxKeyCount int) (*stash.Stash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.stashes[name]; ok {
		return existing, nil
	}
	s, err := stash.New(stash.Options{
		Name:        name,
		MaxKeyCount: maxKeyCount,
		OffHeap:     offHeap,
		DataPath:    m.dataPathFor(name),
		StripeCount: m.stripeCount,
		Logger:      m.log,
	})
	if err != nil {
		return nil, err
	}
	m.stashes[name] = s
	return s, nil
}

// ExpireDue sweeps every stash's TTL wheel once, meant to be invoked by
// a single shared ticker goroutine.
func (m *Manager) ExpireDue() {
	for _, s := range m.snapshotOfStashes() {
		s.ExpireDue()
	}
}

// Count reports the number of stashes currently held.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stashes)
}

// Each calls fn for every stash currently held, used by the snapshot
// scheduler to start one ticker per stash.
func (m *Manager) Each(fn func(name string, s *stash.Stash)) {
	for name, s := range m.snapshotOfStashesNamed() {
		fn(name, s)
	}
}

func (m *Manager) snapshotOfStashes() []*stash.Stash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*stash.Stash, 0, len(m.stashes))
	for _, s := range m.stashes {
		out = append(out, s)
	}
	return out
}

func (m *Manager) snapshotOfStashesNamed() map[string]*stash.Stash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*stash.Stash, len(m.stashes))
	for name, s := range m.stashes {
		out[name] = s
	}
	return out
}

// CloseAll closes every stash, used at process shutdown.
func (m *Manager) CloseAll() {
	for name, s := range m.snapshotOfStashesNamed() {
		if err := s.Close(); err != nil {
			m.log.Warnf("closing stash %s: %v", name, err)
		}
	}
}

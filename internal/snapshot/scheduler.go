package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/sstash/sstash/internal/logging"
)

// target is one stash tracked by a Scheduler.
type target struct {
	name        string
	maxKeyCount int
	offHeap     bool
	stash       dirtyStash
}

// Scheduler runs one ticker goroutine per tracked stash, writing a
// snapshot on each tick only if the stash is dirty. Grounded in the
// Java original's SnapshotManager explicit start()/stop() lifecycle
// rather than a bare fire-and-forget goroutine, so the owning process
// can coordinate an orderly shutdown across every stash it manages.
type Scheduler struct {
	writer   *Writer
	interval time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	targets map[string]target
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewScheduler(writer *Writer, interval time.Duration, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.New("snapshot", logging.Info)
	}
	return &Scheduler{
		writer:   writer,
		interval: interval,
		log:      log.Named("scheduler"),
		targets:  make(map[string]target),
	}
}

// Track registers a stash for periodic snapshotting. If the scheduler
// is already running, a ticker for it starts immediately.
func (s *Scheduler) Track(name string, maxKeyCount int, offHeap bool, st dirtyStash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := target{name: name, maxKeyCount: maxKeyCount, offHeap: offHeap, stash: st}
	s.targets[name] = t
	if s.started {
		s.startTickerLocked(t)
	}
}

// Untrack stops scheduling snapshots for a stash, called on DROP. The
// in-flight ticker goroutine, if any, notices on its next tick via the
// removed-from-map check and exits.
func (s *Scheduler) Untrack(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, name)
}

// Start begins periodic snapshotting for every currently tracked
// stash. A second call is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, t := range s.targets {
		s.startTickerLocked(t)
	}
}

// startTickerLocked must be called with s.mu held and s.started true.
func (s *Scheduler) startTickerLocked(t target) {
	s.wg.Add(1)
	go s.tickLoop(s.ctx, t)
}

func (s *Scheduler) tickLoop(ctx context.Context, t target) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.isTracked(t.name) {
				return
			}
			if err := s.writer.WriteIfDirty(t.name, t.maxKeyCount, t.offHeap, t.stash); err != nil {
				s.log.Warnf("snapshot tick failed for %s: %v", t.name, err)
			}
		}
	}
}

func (s *Scheduler) isTracked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[name]
	return ok
}

// Stop cancels every running ticker and waits for them to exit; a tick
// already writing when Stop is called finishes before Stop returns. Stop
// performs no final write of its own: a stash still dirty afterwards is
// only flushed by a direct WriteIfDirty call.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.started = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

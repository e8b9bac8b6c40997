// Package replication implements the leader-side fan-out of mutating
// commands to connected followers, and the follower-side stream
// consumer that applies them to a local dispatcher.
package replication

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/metrics"
	"github.com/sstash/sstash/internal/wire"
)

// sinkBufferSize bounds how many pending encoded commands a single
// follower sink may queue before it is considered too slow and dropped.
const sinkBufferSize = 1024

// sink is one connected follower's outbound mutation queue. A single
// writer goroutine drains it onto the wire, giving FIFO ordering per
// follower relative to the leader's enqueue sequence.
type sink struct {
	id     string
	conn   net.Conn
	queue  chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *sink) close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Leader holds the set of connected follower sinks and fans out every
// successfully applied write command to each of them. Best-effort: a
// sink that cannot keep up or errors is dropped and closed, never
// blocking the rest of the fleet.
type Leader struct {
	log     *logging.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	sinks map[string]*sink
}

func NewLeader(log *logging.Logger) *Leader {
	if log == nil {
		log = logging.New("replication", logging.Info)
	}
	return &Leader{log: log.Named("leader"), sinks: make(map[string]*sink)}
}

// WithMetrics attaches a metrics sink, returning the same Leader for
// chaining at construction time.
func (l *Leader) WithMetrics(m *metrics.Metrics) *Leader {
	l.metrics = m
	return l
}

// AddFollower registers conn as a new follower sink and starts its
// drain goroutine. Called once per accepted replication connection.
func (l *Leader) AddFollower(conn net.Conn) {
	id := uuid.NewString()
	s := &sink{
		id:     id,
		conn:   conn,
		queue:  make(chan []byte, sinkBufferSize),
		closed: make(chan struct{}),
	}
	l.mu.Lock()
	l.sinks[id] = s
	l.mu.Unlock()

	l.log.Infof("follower connected: %s (%s)", id, conn.RemoteAddr())
	go l.drain(s)
}

func (l *Leader) drain(s *sink) {
	defer l.removeSink(s)
	for {
		select {
		case <-s.closed:
			return
		case payload, ok := <-s.queue:
			if !ok {
				return
			}
			if _, err := s.conn.Write(payload); err != nil {
				l.log.Warnf("follower %s write failed, dropping sink: %v", s.id, err)
				if l.metrics != nil {
					l.metrics.RecordFanoutDrop()
				}
				return
			}
		}
	}
}

func (l *Leader) removeSink(s *sink) {
	s.close()
	l.mu.Lock()
	delete(l.sinks, s.id)
	l.mu.Unlock()
}

// FollowerCount reports how many followers are currently connected,
// exposed as a metrics gauge.
func (l *Leader) FollowerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sinks)
}

// Forward re-encodes cmd to its wire form and appends it to every
// connected follower sink's queue. A full sink is dropped rather than
// blocking the caller — this is invoked from inside a stash's stripe
// lock, so it must never stall.
func (l *Leader) Forward(cmd *wire.Command) {
	payload := flatten(cmd.Encode())

	l.mu.Lock()
	targets := make([]*sink, 0, len(l.sinks))
	for _, s := range l.sinks {
		targets = append(targets, s)
	}
	l.mu.Unlock()

	for _, s := range targets {
		select {
		case s.queue <- payload:
		default:
			l.log.Warnf("follower %s sink full, dropping connection", s.id)
			if l.metrics != nil {
				l.metrics.RecordFanoutDrop()
			}
			l.removeSink(s)
		}
	}
}

func flatten(tokens [][]byte) []byte {
	n := 0
	for _, t := range tokens {
		n += len(t)
	}
	out := make([]byte, 0, n)
	for _, t := range tokens {
		out = append(out, t...)
	}
	return out
}

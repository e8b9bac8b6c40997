package replication

import (
	"context"
	"net"
	"time"

	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/wire"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// applier is the subset of *dispatch.Dispatcher a follower needs. Kept
// as a local interface so this package never imports dispatch — the
// concrete *dispatch.Dispatcher already satisfies it structurally.
type applier interface {
	Dispatch(cmd *wire.Command, readOnly bool, bypassReadOnly bool) []byte
}

// Follower dials a leader's replication listener and applies its mutation
// stream to a local dispatcher. There is no resume/offset mechanism:
// reconnection always rejoins the live stream, and any writes the
// leader made during a disconnect are simply missed.
type Follower struct {
	addr    string
	applier applier
	log     *logging.Logger
}

func NewFollower(addr string, applier applier, log *logging.Logger) *Follower {
	if log == nil {
		log = logging.New("replication", logging.Info)
	}
	return &Follower{addr: addr, applier: applier, log: log.Named("follower")}
}

// Run connects and consumes until ctx is canceled, reconnecting with
// exponential backoff (capped at 30s) whenever the connection drops.
func (f *Follower) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := net.Dial("tcp", f.addr)
		if err != nil {
			f.log.Warnf("dial %s failed: %v, retrying in %s", f.addr, err, backoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		f.log.Infof("connected to leader %s", f.addr)
		backoff = initialBackoff
		f.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		f.log.Warnf("disconnected from leader %s, reconnecting", f.addr)
	}
}

func (f *Follower) consume(ctx context.Context, conn net.Conn) {
	// stop lets the read loop's own return signal the watcher goroutine to
	// exit without waiting on ctx cancellation, so an ordinary connection
	// drop (leader restart, network blip) unblocks Run's reconnect loop
	// instead of hanging until the process shuts down.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	dec := wire.NewDecoder()
	buf := make([]byte, 64*1024)
	var queue [][]byte

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			toks, decErr := dec.Feed(buf[:n])
			if decErr != nil {
				f.log.Errorf("malformed replication stream from %s: %v", f.addr, decErr)
				return
			}
			queue = append(queue, toks...)
			queue = f.applyReady(queue)
		}
		if err != nil {
			return
		}
	}
}

// applyReady repeatedly tries to parse one command from the front of
// queue, applying and consuming it, stopping when the remaining tokens
// form an incomplete command.
func (f *Follower) applyReady(queue [][]byte) [][]byte {
	for {
		result, needMore := wire.TryParse(queue)
		if needMore {
			return queue
		}
		if result.Err == nil {
			f.applier.Dispatch(result.Cmd, true, true)
		} else {
			f.log.Errorf("bad command from leader: %v", result.Err)
		}
		queue = queue[result.Consumed:]
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

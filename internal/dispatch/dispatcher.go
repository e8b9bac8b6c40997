// Package dispatch routes parsed wire commands to the stash manager and
// renders their outcome back into reply tokens.
package dispatch

import (
	"time"

	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/manager"
	"github.com/sstash/sstash/internal/metrics"
	"github.com/sstash/sstash/internal/sstasherr"
	"github.com/sstash/sstash/internal/stash"
	"github.com/sstash/sstash/internal/wire"
)

// Forwarder re-encodes and fans out a successfully applied write
// command to every connected follower sink. On a non-leader node this
// is nil and forwarding is skipped entirely.
type Forwarder interface {
	Forward(cmd *wire.Command)
}

// Lifecycle is notified when CREATE/DROP succeed, so the snapshot
// scheduler can start or stop tracking the affected stash without the
// dispatcher needing to import the snapshot package.
type Lifecycle interface {
	Created(name string, s *stash.Stash)
	Dropped(name string)
}

// Dispatcher executes parsed commands against a Manager. One Dispatcher
// is shared by every connection; it carries no per-connection state.
type Dispatcher struct {
	mgr       *manager.Manager
	forwarder Forwarder
	lifecycle Lifecycle
	log       *logging.Logger
	// metrics is nil when the server was started without --metrics-addr.
	metrics *metrics.Metrics
}

func New(mgr *manager.Manager, forwarder Forwarder, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.New("dispatch", logging.Info)
	}
	return &Dispatcher{mgr: mgr, forwarder: forwarder, log: log.Named("dispatch")}
}

// WithMetrics attaches a metrics sink, returning the same Dispatcher
// for chaining at construction time.
func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithLifecycle attaches a CREATE/DROP observer, returning the same
// Dispatcher for chaining at construction time.
func (d *Dispatcher) WithLifecycle(l Lifecycle) *Dispatcher {
	d.lifecycle = l
	return d
}

// Dispatch executes cmd and returns the encoded reply. readOnly gates
// every write verb; bypassReadOnly lets the replication-apply path
// (the follower's internal channel from its leader) execute writes
// against a connection that would otherwise reject them.
func (d *Dispatcher) Dispatch(cmd *wire.Command, readOnly bool, bypassReadOnly bool) []byte {
	if d.metrics != nil {
		start := time.Now()
		defer func() { d.metrics.CommandLatency(cmd.Verb).Update(time.Since(start).Seconds()) }()
		d.metrics.CommandCounter(cmd.Verb).Inc()
	}

	if readOnly && !bypassReadOnly && cmd.IsWrite() {
		if d.metrics != nil {
			d.metrics.RecordError()
		}
		return wire.EncodeError(sstasherr.ErrReadOnly.Msg)
	}

	var (
		payload []byte
		err     error
	)
	switch cmd.Verb {
	case wire.VerbGet:
		payload, err = d.handleGet(cmd, readOnly)
	case wire.VerbInfo:
		payload, err = d.handleInfo(cmd)
	case wire.VerbSet:
		err = d.handleSet(cmd)
	case wire.VerbSetTTL:
		err = d.handleSetTTL(cmd)
	case wire.VerbDelete:
		err = d.handleDelete(cmd)
	case wire.VerbUpdateTTL:
		err = d.handleUpdateTTL(cmd)
	case wire.VerbCreate:
		err = d.handleCreate(cmd)
	case wire.VerbDrop:
		err = d.handleDrop(cmd)
	default:
		err = sstasherr.InvalidCommand(cmd.Verb)
	}

	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordError()
		}
		return wire.EncodeError(sstasherr.As(err).Msg)
	}
	if payload != nil {
		return wire.EncodeValue(payload)
	}
	return wire.EncodeOK()
}

// afterForward builds the trailing callback passed into a Stash write
// method so replication fan-out happens under the same stripe lock as
// the local mutation, preserving per-key forwarding order.
func (d *Dispatcher) afterForward(cmd *wire.Command) func() {
	if d.forwarder == nil {
		return nil
	}
	return func() { d.forwarder.Forward(cmd) }
}

package dispatch

import (
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/fwojciec/otokit"
)

// Ensure Dispatcher implements otokit.Emitter at compile time.
var _ otokit.Emitter = (*Dispatcher)(nil)

// Dispatcher fans events out to a single attached listener. Every Emit hops
// onto the executor; the listener is resolved there, at delivery time, so a
// detach observed on the executor stops delivery to the old listener.
type Dispatcher struct {
	executor Executor
	slot     atomic.Pointer[slot]
	logger   *slog.Logger
}

type slot struct {
	listener otokit.Listener
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger logs every emitted event at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher returns a Dispatcher delivering on executor.
func NewDispatcher(executor Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		executor: executor,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach replaces the attached listener. Attaching nil detaches.
func (d *Dispatcher) Attach(l otokit.Listener) {
	if l == nil {
		d.Detach()
		return
	}
	d.slot.Store(&slot{listener: l})
}

// Detach clears the attached listener. Events already queued are dropped if
// they reach the executor after this call.
func (d *Dispatcher) Detach() {
	d.slot.Store(nil)
}

// Listener returns the attached listener, or nil.
func (d *Dispatcher) Listener() otokit.Listener {
	if s := d.slot.Load(); s != nil {
		return s.listener
	}
	return nil
}

// Emit schedules delivery of evt on the executor and returns immediately.
func (d *Dispatcher) Emit(evt otokit.Event) {
	if d == nil {
		return
	}
	d.logger.Debug("event",
		"kind", evt.Kind.String(),
		"run", evt.RunID,
		"message", evt.Message,
		"err", evt.Err,
	)
	if evt.Kind == otokit.EventAuthenticated {
		return
	}
	d.executor.Post(func() {
		d.deliver(evt)
	})
}

func (d *Dispatcher) deliver(evt otokit.Event) {
	l := d.Listener()
	if l == nil {
		return
	}
	switch evt.Kind {
	case otokit.EventMessage:
		l.OnMessage(evt.Message)
	case otokit.EventAuthStarted:
		l.OnAuthStarted()
	case otokit.EventFinished:
		l.OnFinished()
	case otokit.EventError:
		l.OnError(evt.Err)
	}
}

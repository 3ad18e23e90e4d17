package orchestrate

import (
	"context"
	"sync/atomic"

	"github.com/fwojciec/otokit"
)

// RunState is the position of a run in its linear sequence.
type RunState int32

const (
	StateIdle RunState = iota
	StateTunnelStopping
	StateSettling
	StateAuthenticating
	StateUploading
	StateFinished
	StateErrored
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTunnelStopping:
		return "tunnel_stopping"
	case StateSettling:
		return "settling"
	case StateAuthenticating:
		return "authenticating"
	case StateUploading:
		return "uploading"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s RunState) Terminal() bool {
	return s == StateFinished || s == StateErrored
}

// Run is a handle on one background run started by Orchestrator.StartRun.
type Run struct {
	id      string
	authURL string

	state       atomic.Int32
	sawFinished atomic.Bool
	sawError    atomic.Bool

	done chan struct{}
	err  error // written before done is closed
}

func newRun(id, authURL string) *Run {
	return &Run{
		id:      id,
		authURL: authURL,
		done:    make(chan struct{}),
	}
}

// ID returns the run identifier attached to every event of the run.
func (r *Run) ID() string { return r.id }

// AuthURL returns the authorization URL the run was started with.
func (r *Run) AuthURL() string { return r.authURL }

// State returns the current state.
func (r *Run) State() RunState {
	return RunState(r.state.Load())
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that terminated the run. It is nil while the run is
// in flight and after a successful run.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the run ends or ctx is done, and returns the run error.
// The run error has already been delivered through OnError; Wait is for
// hosts and tests that need to join the background work.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) setState(s RunState) {
	r.state.Store(int32(s))
}

// runEmitter tags crawler events with the run ID and tracks run state.
type runEmitter struct {
	run  *Run
	next otokit.Emitter
}

func (e runEmitter) Emit(evt otokit.Event) {
	evt.RunID = e.run.id
	switch evt.Kind {
	case otokit.EventAuthStarted:
		e.run.setState(StateAuthenticating)
	case otokit.EventAuthenticated:
		e.run.setState(StateUploading)
	case otokit.EventFinished:
		e.run.sawFinished.Store(true)
	case otokit.EventError:
		e.run.sawError.Store(true)
	}
	e.next.Emit(evt)
}

package mock

import (
	"sync"

	"github.com/fwojciec/otokit"
)

var _ otokit.Listener = (*Listener)(nil)

// Listener is a mock implementation of otokit.Listener.
type Listener struct {
	OnMessageFn     func(text string)
	OnAuthStartedFn func()
	OnFinishedFn    func()
	OnErrorFn       func(err error)
}

func (l *Listener) OnMessage(text string) {
	l.OnMessageFn(text)
}

func (l *Listener) OnAuthStarted() {
	l.OnAuthStartedFn()
}

func (l *Listener) OnFinished() {
	l.OnFinishedFn()
}

func (l *Listener) OnError(err error) {
	l.OnErrorFn(err)
}

var _ otokit.Emitter = (*Emitter)(nil)

// Emitter is an otokit.Emitter that records every event it receives.
// It is safe for concurrent use.
type Emitter struct {
	mu     sync.Mutex
	events []otokit.Event
}

func (e *Emitter) Emit(evt otokit.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

// Events returns a copy of the recorded events.
func (e *Emitter) Events() []otokit.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]otokit.Event(nil), e.events...)
}

// Messages returns the text of recorded message events.
func (e *Emitter) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, evt := range e.events {
		if evt.Kind == otokit.EventMessage {
			out = append(out, evt.Message)
		}
	}
	return out
}

// Kinds returns the kinds of recorded events in order.
func (e *Emitter) Kinds() []otokit.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]otokit.EventKind, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Kind
	}
	return out
}

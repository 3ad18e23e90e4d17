package otokit

import (
	"fmt"
	"time"
)

// EventKind classifies run events.
type EventKind int

const (
	EventMessage EventKind = iota
	EventAuthStarted
	// EventAuthenticated marks the end of the login step. It advances run
	// state and is never delivered to a listener.
	EventAuthenticated
	EventFinished
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventAuthStarted:
		return "auth_started"
	case EventAuthenticated:
		return "authenticated"
	case EventFinished:
		return "finished"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single notification produced while a run executes.
type Event struct {
	Kind    EventKind
	Message string
	Err     error

	// RunID is set by the orchestrator for events produced inside a run.
	RunID string
	Time  time.Time
}

// Emitter publishes events toward the attached listener. Implementations
// must not block the caller.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(evt Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) {
	f(evt)
}

// Message returns a message event.
func Message(text string) Event {
	return Event{Kind: EventMessage, Message: text, Time: time.Now()}
}

// Messagef returns a message event with a formatted text.
func Messagef(format string, args ...any) Event {
	return Message(fmt.Sprintf(format, args...))
}

// AuthStarted returns an auth-started event.
func AuthStarted() Event {
	return Event{Kind: EventAuthStarted, Time: time.Now()}
}

// Authenticated returns an authenticated event.
func Authenticated() Event {
	return Event{Kind: EventAuthenticated, Time: time.Now()}
}

// Finished returns a finished event.
func Finished() Event {
	return Event{Kind: EventFinished, Time: time.Now()}
}

// Failed returns an error event carrying err.
func Failed(err error) Event {
	return Event{Kind: EventError, Err: err, Time: time.Now()}
}

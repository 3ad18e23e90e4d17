package otokit

// Listener observes the progress of runs. At most one listener is attached
// at a time and all callbacks are invoked on the UI execution context.
type Listener interface {
	// OnMessage receives a human-readable progress line.
	OnMessage(text string)

	// OnAuthStarted is called when the authorization phase begins.
	OnAuthStarted()

	// OnFinished is called when a run completed end-to-end.
	OnFinished()

	// OnError is called when a run terminated abnormally.
	OnError(err error)
}

// Ensure ListenerFuncs implements Listener at compile time.
var _ Listener = ListenerFuncs{}

// ListenerFuncs adapts plain functions to the Listener interface.
// Nil functions are skipped.
type ListenerFuncs struct {
	MessageFn     func(text string)
	AuthStartedFn func()
	FinishedFn    func()
	ErrorFn       func(err error)
}

func (l ListenerFuncs) OnMessage(text string) {
	if l.MessageFn != nil {
		l.MessageFn(text)
	}
}

func (l ListenerFuncs) OnAuthStarted() {
	if l.AuthStartedFn != nil {
		l.AuthStartedFn()
	}
}

func (l ListenerFuncs) OnFinished() {
	if l.FinishedFn != nil {
		l.FinishedFn()
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.ErrorFn != nil {
		l.ErrorFn(err)
	}
}

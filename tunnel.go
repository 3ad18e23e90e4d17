package otokit

import "context"

// Tunnel is the local traffic-interception VPN. Its running flag must be
// false while a run issues authenticated traffic.
type Tunnel interface {
	// Running reports whether the tunnel currently owns the network.
	Running() bool

	// SetRunning writes the running flag directly. Writing false is an
	// implicit stop request; teardown completes asynchronously.
	SetRunning(running bool)

	// Start brings the tunnel up.
	// Returns ECONFLICT if the tunnel is already running.
	Start(ctx context.Context) error

	// Stop tears the tunnel down and waits for teardown to complete.
	Stop(ctx context.Context) error

	// AddStatusListener registers l for status changes.
	AddStatusListener(l StatusListener)

	// RemoveStatusListener unregisters l.
	RemoveStatusListener(l StatusListener)
}

// StatusListener observes tunnel status changes. An empty status means the
// tunnel reported no status text.
type StatusListener interface {
	OnStatusChanged(status string, running bool)
}

// StatusListenerFunc adapts a function to the StatusListener interface.
// Function values are not comparable, so register a pointer to one when
// removal is needed.
type StatusListenerFunc func(status string, running bool)

// OnStatusChanged calls f(status, running).
func (f StatusListenerFunc) OnStatusChanged(status string, running bool) {
	f(status, running)
}

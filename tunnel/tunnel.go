// Package tunnel provides an in-process implementation of otokit.Tunnel.
//
// LocalTunnel models the lifecycle of the interception VPN: a running flag
// that may be written from outside, a teardown that completes some time after
// the flag is cleared, and status notifications. Packet handling is owned by
// the platform VPN service and is not modelled here.
package tunnel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/otokit"
)

// Status texts reported to listeners.
const (
	StatusStarted  = "started"
	StatusStopping = "stopping"
	StatusStopped  = "stopped"
)

// DefaultTeardownDelay is how long the tunnel takes to release the network
// after a stop request.
const DefaultTeardownDelay = 500 * time.Millisecond

// Ensure LocalTunnel implements otokit.Tunnel at compile time.
var _ otokit.Tunnel = (*LocalTunnel)(nil)

// LocalTunnel is an in-process tunnel lifecycle.
type LocalTunnel struct {
	mu        sync.Mutex
	running   bool
	up        bool // true until teardown completes
	gen       int  // incremented on every start, invalidates stale teardowns
	listeners []otokit.StatusListener

	teardownDelay time.Duration
	logger        *slog.Logger
}

// Option configures a LocalTunnel.
type Option func(*LocalTunnel)

// WithTeardownDelay sets how long teardown takes after a stop request.
func WithTeardownDelay(d time.Duration) Option {
	return func(t *LocalTunnel) {
		t.teardownDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *LocalTunnel) {
		t.logger = logger
	}
}

// NewLocalTunnel returns a stopped tunnel.
func NewLocalTunnel(opts ...Option) *LocalTunnel {
	t := &LocalTunnel{
		teardownDelay: DefaultTeardownDelay,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Running reports whether the tunnel still owns the network. It stays true
// after a stop request until teardown completes.
func (t *LocalTunnel) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.up
}

// SetRunning writes the running flag. Clearing it starts an asynchronous
// teardown; setting it brings the tunnel up immediately.
func (t *LocalTunnel) SetRunning(running bool) {
	t.mu.Lock()
	if running == t.running {
		t.mu.Unlock()
		return
	}
	t.running = running
	if running {
		t.up = true
		t.gen++
		listeners := t.snapshotLocked()
		t.mu.Unlock()
		t.notify(listeners, StatusStarted, true)
		return
	}
	gen := t.gen
	listeners := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Debug("tunnel stop requested")
	t.notify(listeners, StatusStopping, true)
	go t.teardown(gen)
}

// Start brings the tunnel up.
func (t *LocalTunnel) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.up {
		t.mu.Unlock()
		return otokit.Errorf(otokit.ECONFLICT, "tunnel already running")
	}
	t.mu.Unlock()
	t.SetRunning(true)
	return nil
}

// Stop requests teardown and waits for it to complete.
func (t *LocalTunnel) Stop(ctx context.Context) error {
	t.SetRunning(false)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for t.Running() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// AddStatusListener registers l.
func (t *LocalTunnel) AddStatusListener(l otokit.StatusListener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// RemoveStatusListener unregisters l.
func (t *LocalTunnel) RemoveStatusListener(l otokit.StatusListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

func (t *LocalTunnel) teardown(gen int) {
	if t.teardownDelay > 0 {
		time.Sleep(t.teardownDelay)
	}
	t.mu.Lock()
	if t.gen != gen || t.running {
		// Restarted while tearing down.
		t.mu.Unlock()
		return
	}
	t.up = false
	listeners := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Debug("tunnel stopped")
	t.notify(listeners, StatusStopped, false)
}

func (t *LocalTunnel) snapshotLocked() []otokit.StatusListener {
	return append([]otokit.StatusListener(nil), t.listeners...)
}

func (t *LocalTunnel) notify(listeners []otokit.StatusListener, status string, running bool) {
	for _, l := range listeners {
		l.OnStatusChanged(status, running)
	}
}

package mock

import (
	"context"

	"github.com/fwojciec/otokit"
)

var _ otokit.Tunnel = (*Tunnel)(nil)

// Tunnel is a mock implementation of otokit.Tunnel.
type Tunnel struct {
	RunningFn              func() bool
	SetRunningFn           func(running bool)
	StartFn                func(ctx context.Context) error
	StopFn                 func(ctx context.Context) error
	AddStatusListenerFn    func(l otokit.StatusListener)
	RemoveStatusListenerFn func(l otokit.StatusListener)
}

func (t *Tunnel) Running() bool {
	return t.RunningFn()
}

func (t *Tunnel) SetRunning(running bool) {
	t.SetRunningFn(running)
}

func (t *Tunnel) Start(ctx context.Context) error {
	return t.StartFn(ctx)
}

func (t *Tunnel) Stop(ctx context.Context) error {
	return t.StopFn(ctx)
}

func (t *Tunnel) AddStatusListener(l otokit.StatusListener) {
	t.AddStatusListenerFn(l)
}

func (t *Tunnel) RemoveStatusListener(l otokit.StatusListener) {
	t.RemoveStatusListenerFn(l)
}

package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/otokit"
)

// Ensure LoggingTunnel implements otokit.Tunnel.
var _ otokit.Tunnel = (*LoggingTunnel)(nil)

// LoggingTunnel wraps a Tunnel with logging of state changes.
type LoggingTunnel struct {
	next   otokit.Tunnel
	logger *slog.Logger
}

// NewLoggingTunnel creates a new LoggingTunnel.
func NewLoggingTunnel(next otokit.Tunnel, logger *slog.Logger) *LoggingTunnel {
	return &LoggingTunnel{next: next, logger: logger}
}

// Running delegates to the wrapped tunnel.
func (t *LoggingTunnel) Running() bool {
	return t.next.Running()
}

// SetRunning delegates to the wrapped tunnel and logs the write.
func (t *LoggingTunnel) SetRunning(running bool) {
	t.logger.Debug("tunnel flag write", "running", running, "was", t.next.Running())
	t.next.SetRunning(running)
}

// Start delegates to the wrapped tunnel and logs the operation.
func (t *LoggingTunnel) Start(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		t.logger.Info("tunnel start",
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return t.next.Start(ctx)
}

// Stop delegates to the wrapped tunnel and logs the operation.
func (t *LoggingTunnel) Stop(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		t.logger.Info("tunnel stop",
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return t.next.Stop(ctx)
}

// AddStatusListener delegates to the wrapped tunnel.
func (t *LoggingTunnel) AddStatusListener(l otokit.StatusListener) {
	t.next.AddStatusListener(l)
}

// RemoveStatusListener delegates to the wrapped tunnel.
func (t *LoggingTunnel) RemoveStatusListener(l otokit.StatusListener) {
	t.next.RemoveStatusListener(l)
}

package tunnel_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/otokit"
	"github.com/fwojciec/otokit/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *statusRecorder) OnStatusChanged(status string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func TestLocalTunnel_Start(t *testing.T) {
	t.Parallel()

	t.Run("starts a stopped tunnel", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel()
		require.NoError(t, tun.Start(context.Background()))

		assert.True(t, tun.Running())
	})

	t.Run("returns conflict when already running", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel()
		require.NoError(t, tun.Start(context.Background()))

		err := tun.Start(context.Background())
		require.Error(t, err)
		assert.Equal(t, otokit.ECONFLICT, otokit.ErrorCode(err))
	})
}

func TestLocalTunnel_SetRunning(t *testing.T) {
	t.Parallel()

	t.Run("treats a cleared flag as a stop request", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel(tunnel.WithTeardownDelay(20 * time.Millisecond))
		rec := &statusRecorder{}
		tun.AddStatusListener(rec)
		tun.SetRunning(true)

		tun.SetRunning(false)
		assert.True(t, tun.Running(), "teardown should still be in progress")

		require.Eventually(t, func() bool { return !tun.Running() }, time.Second, 5*time.Millisecond)
		require.Eventually(t, func() bool { return len(rec.Statuses()) == 3 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{tunnel.StatusStarted, tunnel.StatusStopping, tunnel.StatusStopped}, rec.Statuses())
	})

	t.Run("ignores writes that do not change the flag", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel(tunnel.WithTeardownDelay(0))
		rec := &statusRecorder{}
		tun.AddStatusListener(rec)

		tun.SetRunning(false)
		time.Sleep(10 * time.Millisecond)

		assert.Empty(t, rec.Statuses())
		assert.False(t, tun.Running())
	})

	t.Run("restart during teardown keeps the tunnel up", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel(tunnel.WithTeardownDelay(30 * time.Millisecond))
		tun.SetRunning(true)
		tun.SetRunning(false)
		tun.SetRunning(true)

		time.Sleep(60 * time.Millisecond)
		assert.True(t, tun.Running())
	})
}

func TestLocalTunnel_Stop(t *testing.T) {
	t.Parallel()

	t.Run("waits for teardown", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel(tunnel.WithTeardownDelay(20 * time.Millisecond))
		require.NoError(t, tun.Start(context.Background()))

		require.NoError(t, tun.Stop(context.Background()))
		assert.False(t, tun.Running())
	})

	t.Run("returns context error when teardown is slow", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel(tunnel.WithTeardownDelay(time.Second))
		require.NoError(t, tun.Start(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := tun.Stop(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLocalTunnel_RemoveStatusListener(t *testing.T) {
	t.Parallel()

	t.Run("stops notifying removed listeners", func(t *testing.T) {
		t.Parallel()

		tun := tunnel.NewLocalTunnel(tunnel.WithTeardownDelay(0))
		rec := &statusRecorder{}
		tun.AddStatusListener(rec)
		tun.RemoveStatusListener(rec)

		tun.SetRunning(true)

		assert.Empty(t, rec.Statuses())
	})
}

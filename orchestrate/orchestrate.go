// Package orchestrate sequences a score-upload run: stop the interception
// tunnel, wait for it to release the network, then let the crawler log in,
// fetch and upload. Outcomes are reported through a single-listener event bus.
package orchestrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/otokit"
	"github.com/google/uuid"
)

// Default timings.
const (
	DefaultMinQuiescence     = 3 * time.Second
	DefaultSettleDelay       = 3 * time.Second
	DefaultQuiescenceTimeout = 15 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
)

// ErrRunInProgress is returned by StartRun in single-flight mode while
// another run is active.
var ErrRunInProgress = otokit.Errorf(otokit.ECONFLICT, "a run is already in progress")

// EventBus is the single-listener event channel. dispatch.Dispatcher
// implements it.
type EventBus interface {
	otokit.Emitter
	Attach(l otokit.Listener)
	Detach()
}

// Orchestrator sequences runs. Runs started concurrently proceed
// independently unless SingleFlight is set.
type Orchestrator struct {
	Tunnel  otokit.Tunnel
	Crawler otokit.Crawler
	Events  EventBus

	// MinQuiescence is the least time to wait after the stop request,
	// even when the tunnel reports it is down sooner.
	MinQuiescence time.Duration

	// QuiescenceTimeout bounds the wait for the tunnel to go down.
	// Zero waits until the run context is done. A tunnel already down when
	// it expires only waits out MinQuiescence.
	QuiescenceTimeout time.Duration

	// SettleDelay is an extra margin after quiescence before traffic starts.
	SettleDelay time.Duration

	// PollInterval is how often the tunnel flag is checked while waiting.
	PollInterval time.Duration

	// SingleFlight rejects StartRun while another run is active.
	SingleFlight bool

	// Logger receives run and wait diagnostics. Nil discards them.
	Logger *slog.Logger

	// NewRunID generates run IDs. Nil uses random UUIDs.
	NewRunID func() string

	stopped atomic.Bool

	mu     sync.Mutex
	active int
}

// NewOrchestrator returns an Orchestrator with default timings.
func NewOrchestrator(tunnel otokit.Tunnel, crawler otokit.Crawler, events EventBus) *Orchestrator {
	return &Orchestrator{
		Tunnel:            tunnel,
		Crawler:           crawler,
		Events:            events,
		MinQuiescence:     DefaultMinQuiescence,
		QuiescenceTimeout: DefaultQuiescenceTimeout,
		SettleDelay:       DefaultSettleDelay,
		PollInterval:      DefaultPollInterval,
	}
}

// Attach replaces the attached listener.
func (o *Orchestrator) Attach(l otokit.Listener) {
	o.Events.Attach(l)
}

// Detach clears the attached listener.
func (o *Orchestrator) Detach() {
	o.Events.Detach()
}

// Stopped reports whether the user asked to stop. The orchestrator does not
// consult it; hosts check it before starting a run and the crawler checks it
// between pages.
func (o *Orchestrator) Stopped() bool {
	return o.stopped.Load()
}

// SetStopped writes the stopped flag.
func (o *Orchestrator) SetStopped(stopped bool) {
	o.stopped.Store(stopped)
}

// Active returns the number of runs in flight.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// RequestAuthURL obtains the authorization URL. On failure it dispatches a
// single OnError and returns "".
func (o *Orchestrator) RequestAuthURL(ctx context.Context) string {
	u, err := o.Crawler.AuthorizationURL(ctx)
	if err != nil {
		o.logger().Warn("authorization url failed", "err", err)
		o.Events.Emit(otokit.Failed(asIOError(err, "obtain authorization url")))
		return ""
	}
	return u
}

// RequestAuthURLOrLog is like RequestAuthURL but also dispatches a localized
// error line before the OnError event.
func (o *Orchestrator) RequestAuthURLOrLog(ctx context.Context) string {
	u, err := o.Crawler.AuthorizationURL(ctx)
	if err != nil {
		o.logger().Warn("authorization url failed", "err", err)
		o.Events.Emit(otokit.Messagef("[ERROR] 发起微信登录授权失败: %s", errorText(err)))
		o.Events.Emit(otokit.Failed(asIOError(err, "obtain authorization url")))
		return ""
	}
	return u
}

// StartRun launches a run in the background and returns its handle
// immediately. The session is copied; later changes to it do not affect the
// run. Cancelling ctx interrupts the run at its next wait or inside the
// crawler. In single-flight mode ErrRunInProgress is returned while another
// run is active.
func (o *Orchestrator) StartRun(ctx context.Context, authURL string, session otokit.Session) (*Run, error) {
	if !o.acquire() {
		return nil, ErrRunInProgress
	}

	run := newRun(o.newRunID(), authURL)
	snapshot := session.Snapshot()
	go o.execute(ctx, run, snapshot)
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, session otokit.Session) {
	logger := o.logger().With("run", run.id)
	defer close(run.done)
	// The slot is free before done is closed.
	defer o.release()
	defer func(begin time.Time) {
		logger.Info("run",
			"state", run.State().String(),
			"duration", time.Since(begin),
			"err", run.err,
		)
	}(time.Now())

	run.setState(StateTunnelStopping)
	o.Tunnel.SetRunning(false)

	if err := o.awaitQuiescence(ctx); err != nil {
		o.fail(run, err)
		return
	}

	run.setState(StateSettling)
	if err := sleep(ctx, o.SettleDelay); err != nil {
		o.fail(run, otokit.WrapError(otokit.EINTERRUPTED, err, "run interrupted while settling"))
		return
	}

	run.setState(StateAuthenticating)
	req := otokit.UploadRequest{
		Username:     session.Username,
		Password:     session.Password,
		Game:         session.Game,
		Difficulties: session.DifficultySet(),
		AuthURL:      run.authURL,
		Stopped:      o.Stopped,
	}
	if err := o.Crawler.FetchAndUpload(ctx, req, runEmitter{run: run, next: o.Events}); err != nil {
		if ctx.Err() != nil && otokit.ErrorCode(err) != otokit.EINTERRUPTED {
			err = otokit.WrapError(otokit.EINTERRUPTED, err, "run interrupted during upload")
		}
		o.fail(run, asIOError(err, "fetch and upload"))
		return
	}

	if run.sawError.Load() && !run.sawFinished.Load() {
		run.setState(StateErrored)
		return
	}
	run.setState(StateFinished)
}

// awaitQuiescence waits until the tunnel reports it is down and at least
// MinQuiescence has passed.
func (o *Orchestrator) awaitQuiescence(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	watcher := &statusWatcher{wake: wake}
	o.Tunnel.AddStatusListener(watcher)
	defer o.Tunnel.RemoveStatusListener(watcher)

	var minC <-chan time.Time
	if o.MinQuiescence > 0 {
		t := time.NewTimer(o.MinQuiescence)
		defer t.Stop()
		minC = t.C
	}

	var timeoutC <-chan time.Time
	if o.QuiescenceTimeout > 0 {
		t := time.NewTimer(o.QuiescenceTimeout)
		defer t.Stop()
		timeoutC = t.C
	}

	interval := o.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return otokit.WrapError(otokit.EINTERRUPTED, err, "run interrupted while stopping tunnel")
		}
		if minC == nil && !o.Tunnel.Running() {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-minC:
			minC = nil
		case <-timeoutC:
			if !o.Tunnel.Running() {
				// Down in time; only the minimum wait remains.
				timeoutC = nil
				continue
			}
			return otokit.Errorf(otokit.ETIMEOUT, "tunnel still running after %s", o.QuiescenceTimeout)
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) fail(run *Run, err error) {
	run.err = err
	run.setState(StateErrored)
	evt := otokit.Failed(err)
	evt.RunID = run.id
	o.Events.Emit(evt)
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.SingleFlight && o.active > 0 {
		return false
	}
	o.active++
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
}

func (o *Orchestrator) newRunID() string {
	if o.NewRunID != nil {
		return o.NewRunID()
	}
	return uuid.New().String()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// statusWatcher wakes the quiescence wait on every tunnel status change.
type statusWatcher struct {
	wake chan struct{}
}

func (w *statusWatcher) OnStatusChanged(_ string, _ bool) {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// asIOError classifies errors that carry no application code as EIO.
func asIOError(err error, op string) error {
	var e *otokit.Error
	if errors.As(err, &e) {
		return err
	}
	return otokit.WrapError(otokit.EIO, err, "%s failed", op)
}

// errorText returns a short user-facing description of err.
func errorText(err error) string {
	var e *otokit.Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	return err.Error()
}

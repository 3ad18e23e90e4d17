package main

import (
	"context"

	"github.com/fwojciec/otokit"
	otoslog "github.com/fwojciec/otokit/slog"
)

// Run executes the run command.
func (c *RunCmd) Run(deps *Dependencies) error {
	difficulties, err := c.difficultySet()
	if err != nil {
		return err
	}
	if c.QuiescenceTimeout > 0 && c.QuiescenceTimeout < c.MinQuiescence {
		return otokit.Errorf(otokit.EINVALID, "quiescence timeout %s is shorter than the minimum quiescence %s",
			c.QuiescenceTimeout, c.MinQuiescence)
	}

	ctx := deps.Ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var store otokit.SessionStore
	store.SetSession(otokit.Session{
		Username:     c.Username,
		Password:     c.Password,
		Game:         deps.Game,
		Difficulties: difficulties,
	})

	o := deps.Orchestrator
	o.SettleDelay = c.Settle
	o.MinQuiescence = c.MinQuiescence
	o.QuiescenceTimeout = c.QuiescenceTimeout
	o.SingleFlight = c.SingleFlight
	o.Attach(otoslog.NewLoggingListener(NewConsole(deps.Stdout, deps.Stderr), deps.Logger))
	defer o.Detach()

	// The interception tunnel is up while the user completes login.
	if err := deps.Tunnel.Start(ctx); err != nil && otokit.ErrorCode(err) != otokit.ECONFLICT {
		return err
	}
	defer func() { _ = deps.Tunnel.Stop(context.WithoutCancel(ctx)) }()

	session := store.Session()
	run, err := o.StartRun(ctx, c.AuthURL, session)
	if err != nil {
		return err
	}
	record(deps, &otokit.RunRecord{
		ID:           run.ID(),
		Game:         session.Game,
		Difficulties: session.DifficultySet().Sorted(),
		State:        run.State().String(),
	})
	<-run.Done()

	// Deliver the remaining events before the process exits.
	if err := deps.Loop.Close(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	finish(deps, run.ID(), otokit.RunUpdate{State: run.State().String(), Err: run.Err()})
	return run.Err()
}

// record stores the start of a run. History failures never fail the run.
func record(deps *Dependencies, rec *otokit.RunRecord) {
	if deps.History == nil {
		return
	}
	if err := deps.History.CreateRun(context.WithoutCancel(deps.Ctx), rec); err != nil {
		deps.Logger.Warn("record run", "run", rec.ID, "err", err)
	}
}

func finish(deps *Dependencies, id string, upd otokit.RunUpdate) {
	if deps.History == nil {
		return
	}
	if _, err := deps.History.FinishRun(context.WithoutCancel(deps.Ctx), id, upd); err != nil {
		deps.Logger.Warn("finish run", "run", id, "err", err)
	}
}

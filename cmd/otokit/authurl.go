package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/otokit"
	otoslog "github.com/fwojciec/otokit/slog"
)

// Run executes the auth-url command.
func (c *AuthURLCmd) Run(deps *Dependencies) error {
	deps.Orchestrator.Attach(otoslog.NewLoggingListener(NewConsole(deps.Stdout, deps.Stderr), deps.Logger))

	u := deps.Orchestrator.RequestAuthURLOrLog(deps.Ctx)

	// Flush queued events before reporting.
	_ = deps.Loop.Close(context.WithoutCancel(deps.Ctx))
	deps.Orchestrator.Detach()

	if u == "" {
		return otokit.Errorf(otokit.EIO, "could not obtain authorization url")
	}
	fmt.Fprintln(deps.Stdout, u)
	return nil
}

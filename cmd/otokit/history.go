package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/otokit"
)

// Run executes the history command.
func (c *HistoryCmd) Run(deps *Dependencies) error {
	if c.Prune > 0 {
		n, err := deps.History.DeleteRuns(deps.Ctx, time.Now().Add(-c.Prune))
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", otokit.ErrorMessage(err))
			return err
		}
		fmt.Fprintf(deps.Stdout, "Pruned %d runs\n", n)
	}

	filter := otokit.RunFilter{Limit: c.Limit}
	if c.State != "" {
		filter.State = &c.State
	}
	runs, err := deps.History.FindRuns(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", otokit.ErrorMessage(err))
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(deps.Stdout, "No runs recorded. Use 'otokit run' to start one.")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(deps.Stdout, "%s  %s  %-8s  %-9s  %s",
			r.StartedAt.Local().Format(time.DateTime), r.ID, r.Game, r.State, difficultyNames(r.Difficulties))
		if r.ErrorCode != "" {
			fmt.Fprintf(deps.Stdout, "  %s: %s", r.ErrorCode, r.ErrorMessage)
		}
		fmt.Fprintln(deps.Stdout)
	}

	return nil
}

func difficultyNames(ds []otokit.Difficulty) string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.String()
	}
	return strings.Join(names, ",")
}

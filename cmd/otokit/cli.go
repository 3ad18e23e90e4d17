package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/otokit"
	"github.com/fwojciec/otokit/dispatch"
	"github.com/fwojciec/otokit/orchestrate"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx          context.Context
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       *slog.Logger
	Game         otokit.Game
	Tunnel       otokit.Tunnel
	Loop         *dispatch.Loop
	Orchestrator *orchestrate.Orchestrator
	History      otokit.RunHistory
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Game    string `short:"g" default:"maimai" enum:"maimai,chunithm" env:"OTOKIT_GAME" help:"Game to crawl (maimai, chunithm)"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	AuthURL AuthURLCmd `cmd:"" name:"auth-url" help:"Print the WeChat authorization URL"`
	Run     RunCmd     `cmd:"" help:"Log in with an intercepted callback URL, fetch records and upload them"`
	History HistoryCmd `cmd:"" help:"List past runs"`
}

// HistoryCmd is the "history" subcommand.
type HistoryCmd struct {
	Limit int           `short:"n" default:"20" help:"Number of runs to show (0 for all)"`
	State string        `help:"Only show runs in this state (finished, errored)"`
	Prune time.Duration `help:"Delete runs older than this before listing"`
}

// AuthURLCmd is the "auth-url" subcommand.
type AuthURLCmd struct{}

// RunCmd is the "run" subcommand.
type RunCmd struct {
	AuthURL      string `name:"auth-url" required:"" env:"OTOKIT_AUTH_URL" help:"Intercepted WeChat callback URL"`
	Username     string `short:"u" env:"OTOKIT_USERNAME,OTOKIT_DIVING_FISH_TOKEN" help:"diving-fish import token"`
	Password     string `short:"p" env:"OTOKIT_PASSWORD,OTOKIT_LXNS_TOKEN" help:"lxns developer token"`
	Difficulties []int  `short:"d" sep:"," env:"OTOKIT_DIFFICULTIES" help:"Difficulties to fetch, 0 (Basic) to 5 (Utage); all when omitted"`
	Lxns         bool   `help:"Also upload to lxns"`

	Settle            time.Duration `default:"3s" help:"Extra delay after the tunnel goes down"`
	MinQuiescence     time.Duration `name:"min-quiescence" default:"3s" help:"Least wait after stopping the tunnel"`
	QuiescenceTimeout time.Duration `name:"quiescence-timeout" default:"15s" help:"Longest wait for the tunnel to go down"`
	SingleFlight      bool          `name:"single-flight" help:"Reject a run while another is active"`
	Timeout           time.Duration `default:"10m" help:"Overall run timeout (0 disables)"`
}

// difficultySet validates the selected difficulties. An empty selection
// means all of them.
func (c *RunCmd) difficultySet() (otokit.DifficultySet, error) {
	if len(c.Difficulties) == 0 {
		return nil, nil
	}
	set := otokit.NewDifficultySet()
	for _, d := range c.Difficulties {
		if d < int(otokit.Basic) || d > int(otokit.Utage) {
			return nil, otokit.Errorf(otokit.EINVALID, "difficulty %d out of range 0..5", d)
		}
		set[otokit.Difficulty(d)] = struct{}{}
	}
	return set, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/otokit"
	"github.com/fwojciec/otokit/dispatch"
	"github.com/fwojciec/otokit/goquery"
	otohttp "github.com/fwojciec/otokit/http"
	"github.com/fwojciec/otokit/orchestrate"
	otoslog "github.com/fwojciec/otokit/slog"
	"github.com/fwojciec/otokit/sqlite"
	"github.com/fwojciec/otokit/tunnel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path for the run history. Set before calling Run().
	DBPath string

	// SQLite database backing the run history.
	DB *sqlite.DB

	// Collaborators for end-to-end testing. Nil values are replaced by the
	// production implementations.
	Crawler otokit.Crawler
	Tunnel  otokit.Tunnel
	History otokit.RunHistory
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath: defaultDBPath(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("otokit"),
		kong.Description("Upload arcade scores to diving-fish and lxns through the WeChat login"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'otokit --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	game, err := otokit.ParseGame(cli.Game)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	deps.Logger = logger
	deps.Game = game

	crawler := m.Crawler
	if crawler == nil {
		crawler = newCrawler(game, cli.Run.Lxns, logger)
	}
	tun := m.Tunnel
	if tun == nil {
		tun = tunnel.NewLocalTunnel(tunnel.WithLogger(logger))
	}
	deps.Tunnel = otoslog.NewLoggingTunnel(tun, logger)

	loop := dispatch.NewLoop(logger)
	deps.Loop = loop
	deps.Orchestrator = orchestrate.NewOrchestrator(
		deps.Tunnel,
		otoslog.NewLoggingCrawler(crawler, logger),
		dispatch.NewDispatcher(loop, dispatch.WithLogger(logger)),
	)
	deps.Orchestrator.Logger = logger

	// Only commands that record or list runs touch the database.
	if cmd := kongCtx.Command(); strings.HasPrefix(cmd, "run") || strings.HasPrefix(cmd, "history") {
		history := m.History
		if history == nil {
			m.DB = sqlite.NewDB(m.DBPath)
			if err := m.DB.Open(); err != nil {
				fmt.Fprintf(stderr, "Hint: Set OTOKIT_DB to use a different database path\n")
				return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
			}
			defer m.Close()
			history = sqlite.NewRunHistory(m.DB)
		}
		deps.History = history
	}

	return kongCtx.Run(deps)
}

func defaultDBPath() string {
	if path := os.Getenv("OTOKIT_DB"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "otokit.db"
	}
	dir := filepath.Join(home, ".otokit")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "otokit.db")
}

// newCrawler wires the http crawler with its upload targets.
func newCrawler(game otokit.Game, lxns bool, logger *slog.Logger) *otohttp.Crawler {
	client := &http.Client{Timeout: otohttp.DefaultTimeout}
	targets := []otohttp.Target{
		otohttp.DivingFishTarget(otoslog.NewLoggingUploader(otohttp.NewDivingFish(client, ""), logger)),
	}
	if lxns {
		targets = append(targets, otohttp.LxnsTarget(otoslog.NewLoggingUploader(otohttp.NewLxns(client, ""), logger)))
	}
	return otohttp.NewCrawler(
		otohttp.WithGame(game),
		otohttp.WithTargets(targets...),
		otohttp.WithFriendCodeExtractor(goquery.NewFriendCodeExtractor()),
	)
}

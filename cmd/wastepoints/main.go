package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/pscheid92/wastepoints/internal/app"
	"github.com/pscheid92/wastepoints/internal/platform/config"
	"github.com/pscheid92/wastepoints/internal/platform/correlation"
	"github.com/pscheid92/wastepoints/internal/platform/logging"
	"github.com/pscheid92/wastepoints/internal/platform/version"
)

const usage = `usage: wastepoints <command> [flags]

commands:
  login        sign in and remember the session
  signup       create an account and sign in
  logout       forget the stored session
  status       show who is signed in
  submit       record a waste submission
  submissions  list your submissions
  stats        show points, rank and goal progress
  leaderboard  show the community ranking
  serve        run the local JSON view server
  version      print build information
`

type command func(ctx context.Context, a *app.App, args []string, out io.Writer) error

var commands = map[string]command{
	"login":       runLogin,
	"signup":      runSignup,
	"logout":      runLogout,
	"status":      runStatus,
	"submit":      runSubmit,
	"submissions": runSubmissions,
	"stats":       runStats,
	"leaderboard": runLeaderboard,
	"serve":       runServe,
}

// errUsage marks a command-line mistake; the message has already been printed.
var errUsage = errors.New("usage")

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name, args := os.Args[1], os.Args[2:]
	switch name {
	case "version", "-version", "--version":
		info := version.Get()
		fmt.Printf("wastepoints %s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx := correlation.WithID(context.Background(), correlation.NewID())
	a, err := app.New(ctx, cfg, app.Options{Navigator: landingNavigator{}})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	err = execute(ctx, a, cmd, args, os.Stdout)
	if closeErr := a.Close(); closeErr != nil {
		slog.Warn("Failed to release resources", "error", closeErr)
	}

	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// execute restores any persisted session before running the command, the
// same way the views wait for restore before rendering.
func execute(ctx context.Context, a *app.App, cmd command, args []string, out io.Writer) error {
	state := a.Session.Restore(ctx)
	slog.DebugContext(ctx, "Session restored", "state", state.String())
	return cmd(ctx, a, args, out)
}

// landingNavigator reports the end of a session on the terminal.
type landingNavigator struct{}

func (landingNavigator) ToLanding() {
	slog.Info("Signed out")
}

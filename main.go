// arth - a terminal client for the Arth portfolio assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/arth-chat/internal/cli"
	"github.com/jeranaias/arth-chat/internal/config"
	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/metrics"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one command and returns the process exit code.
func run(argv []string) int {
	cmd, args, err := cli.Parse(argv)
	if err != nil {
		cli.DisplayError(os.Stderr, cmd.String(), err, args.JSON)
		if !args.JSON {
			fmt.Fprintln(os.Stderr, "Run 'arth help' for usage.")
		}
		return cli.GetExitCode(err)
	}

	if args.NoColor {
		cli.SetColorMode(cli.ColorNever)
	}

	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	case cli.CmdVersion:
		return exitCode(cmd, args, cli.HandleVersion(os.Stdout, args))
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return exitCode(cmd, args, err)
	}
	if !args.NoColor {
		cli.SetColorMode(cfg.UI.Color)
	}

	closeLog := setupLogging(cfg, args)
	defer closeLog()

	// Chat handles Ctrl+C itself: it cancels the reply in progress instead
	// of ending the program.
	ctx := context.Background()
	if cmd != cli.CmdChat {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	if cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go serveMetrics(metricsCtx, cfg.Metrics.Addr)
	}

	return exitCode(cmd, args, dispatch(ctx, cmd, cfg, args))
}

// dispatch runs the handler for cmd.
func dispatch(ctx context.Context, cmd cli.Command, cfg *config.Config, args cli.Args) error {
	switch cmd {
	case cli.CmdReplay:
		return cli.HandleReplay(ctx, os.Stdout, os.Stdin, cfg, args)
	case cli.CmdConfig:
		return cli.HandleConfig(os.Stdout, cfg, args)
	}

	app, err := cli.NewApp(cfg, args)
	if cmd == cli.CmdDoctor {
		// A bad transport is reported as a failed check.
		var client cli.Pinger
		if err == nil {
			client = app.Client
		}
		return cli.HandleDoctor(ctx, os.Stdout, cfg, client, args)
	}
	if err != nil {
		return err
	}

	switch cmd {
	case cli.CmdChat:
		return cli.HandleChat(ctx, app, args)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, app, args)
	case cli.CmdUpload:
		return cli.HandleUpload(ctx, app, args)
	default:
		cli.PrintUsage(os.Stdout)
		return nil
	}
}

// loadConfig loads the configuration. config and doctor fall back to the
// defaults when the file is invalid so the problem can be inspected and
// fixed.
func loadConfig(cmd cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if cfg == nil {
		if cmd != cli.CmdConfig && cmd != cli.CmdDoctor {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.Default()
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg, nil
}

// setupLogging configures the default logger from cfg.Log. Verbose mode
// forces debug level. The returned func closes the log file, if any.
func setupLogging(cfg *config.Config, args cli.Args) func() {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", cfg.Log.File, err)
		} else {
			w = f
			closeFn = func() { f.Close() }
		}
	}

	level := cfg.Log.Level
	if args.Verbose {
		level = "debug"
	}
	logging.Configure(level, cfg.Log.Format, w)
	return closeFn
}

func serveMetrics(ctx context.Context, addr string) {
	logging.Debug("serving metrics", "addr", addr)
	if err := metrics.Serve(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Warn("metrics endpoint stopped", "addr", addr, "error", err)
	}
}

// exitCode reports err and maps it to an exit code.
func exitCode(cmd cli.Command, args cli.Args, err error) int {
	if err == nil {
		return cli.ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return cli.ExitInterrupted
	}
	cli.DisplayError(os.Stderr, cmd.String(), err, args.JSON)
	return cli.GetExitCode(err)
}

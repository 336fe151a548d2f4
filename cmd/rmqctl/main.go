// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/internal/cli"
	"github.com/absmach/rmqctl/telemetry"
	"github.com/google/uuid"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rmqctl [-config FILE] [-connection NAME] [-vhost VHOST] [-output table|json] <command> [flags]\n\n")
		fmt.Fprintln(os.Stderr, "Run 'rmqctl help' for the list of commands.")
	}
	configFile := flag.String("config", config.DefaultPath(), "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	// Stdout carries command output.
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, uuid.NewString())
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry", "error", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("Failed to flush telemetry", "error", err)
		}
	}()

	app := cli.New(cfg, *configFile, os.Stdout, os.Stderr, logger)
	err = app.Run(ctx, flag.Args())
	switch {
	case err == nil:
		return 0
	case cli.IsUsage(err):
		if !errors.Is(err, flag.ErrHelp) && err.Error() != "usage" {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 2
	case errors.Is(err, cli.ErrIncomplete):
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 3
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}

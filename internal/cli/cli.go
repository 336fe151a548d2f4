// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the rmqctl command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/internal/wiring"
)

var (
	// ErrIncomplete is returned when an operation finished with failed messages.
	ErrIncomplete = errors.New("operation incomplete")

	errUsage = errors.New("usage")
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// App runs rmqctl commands.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Open connects to the broker of a connection profile.
	Open func(cfg *config.Config, conn config.Connection) (*wiring.Runtime, error)
	// Offline opens the operation record store only.
	Offline func(cfg *config.Config) (*wiring.Runtime, error)

	ConfigPath string
	Config     *config.Config

	connection string
	vhost      string
	output     string
}

// New creates an App writing to stdout and stderr.
func New(cfg *config.Config, cfgPath string, stdout, stderr io.Writer, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Stdout:     stdout,
		Stderr:     stderr,
		Logger:     logger,
		ConfigPath: cfgPath,
		Config:     cfg,
		Open: func(cfg *config.Config, conn config.Connection) (*wiring.Runtime, error) {
			return wiring.Open(cfg, conn, logger)
		},
		Offline: func(cfg *config.Config) (*wiring.Runtime, error) {
			return wiring.Offline(cfg, logger)
		},
		output: OutputTable,
	}
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *App, cmd *command, args []string) error
	sub     []*command
}

func commands() []*command {
	return []*command{
		connectionCommand(),
		vhostCommand(),
		queueCommand(),
		messageCommand(),
		backupCommand(),
	}
}

// Run parses the global flags and runs the selected command.
func (a *App) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rmqctl", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.StringVar(&a.connection, "connection", "", "Connection profile to use (default profile when empty)")
	fs.StringVar(&a.vhost, "vhost", "", "Virtual host overriding the one of the profile")
	fs.StringVar(&a.output, "output", OutputTable, "Output format: table or json")
	fs.Usage = func() { a.usage(fs, commands(), "rmqctl") }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.output != OutputTable && a.output != OutputJSON {
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cmds := commands()
	rest := fs.Args()
	path := "rmqctl"
	for {
		if len(rest) == 0 || rest[0] == "help" {
			a.usage(fs, cmds, path)
			if len(rest) == 0 {
				return errUsage
			}
			return nil
		}
		cmd := find(cmds, rest[0])
		if cmd == nil {
			a.usage(fs, cmds, path)
			return fmt.Errorf("unknown command %q", strings.TrimSpace(path+" "+rest[0]))
		}
		path += " " + cmd.name
		rest = rest[1:]
		if cmd.run != nil {
			return cmd.run(ctx, a, cmd, rest)
		}
		cmds = cmd.sub
	}
}

func (a *App) usage(fs *flag.FlagSet, cmds []*command, path string) {
	fmt.Fprintf(a.Stderr, "Usage: %s <command> [flags]\n\nCommands:\n", path)
	sorted := append([]*command(nil), cmds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for _, c := range sorted {
		fmt.Fprintf(a.Stderr, "  %-14s %s\n", c.name, c.summary)
	}
	if path == "rmqctl" {
		fmt.Fprintln(a.Stderr, "\nGlobal flags:")
		fs.PrintDefaults()
	}
}

func find(cmds []*command, name string) *command {
	for _, c := range cmds {
		if c.name == name {
			return c
		}
	}
	return nil
}

// flags creates the flag set of a leaf command.
func (a *App) flags(cmd *command) *flag.FlagSet {
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.Stderr, "Usage: rmqctl %s\n\n%s\n", cmd.usage, cmd.summary)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses flags that may appear before, between or after positional
// arguments and returns the positional ones.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// leaf parses the flags of cmd and checks the number of positional arguments.
func (a *App) leaf(cmd *command, fs *flag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	pos, err := parse(fs, args)
	if err != nil {
		return nil, err
	}
	if len(pos) < minArgs || (maxArgs >= 0 && len(pos) > maxArgs) {
		fs.Usage()
		return nil, fmt.Errorf("%w: rmqctl %s", errUsage, cmd.usage)
	}
	return pos, nil
}

// connectionProfile returns the selected connection profile with the global
// vhost override applied.
func (a *App) connectionProfile() (config.Connection, error) {
	conn, err := a.Config.Connection(a.connection)
	if err != nil {
		if errors.Is(err, config.ErrNoConnection) {
			return conn, fmt.Errorf("%w: add one with 'rmqctl connection add'", err)
		}
		return conn, err
	}
	if a.vhost != "" {
		conn.VHost = a.vhost
	}
	return conn, nil
}

// connect opens a runtime for the selected connection profile.
func (a *App) connect() (*wiring.Runtime, config.Connection, error) {
	conn, err := a.connectionProfile()
	if err != nil {
		return nil, conn, err
	}
	rt, err := a.Open(a.Config, conn)
	if err != nil {
		return nil, conn, err
	}
	return rt, conn, nil
}

// withRuntime runs fn with a connected runtime and closes it afterwards.
func (a *App) withRuntime(fn func(rt *wiring.Runtime, conn config.Connection) error) error {
	rt, conn, err := a.connect()
	if err != nil {
		return err
	}
	defer a.closeRuntime(rt)
	return fn(rt, conn)
}

// withOffline runs fn with a runtime holding only the operation record store.
func (a *App) withOffline(fn func(rt *wiring.Runtime) error) error {
	rt, err := a.Offline(a.Config)
	if err != nil {
		return err
	}
	defer a.closeRuntime(rt)
	return fn(rt)
}

func (a *App) closeRuntime(rt *wiring.Runtime) {
	if err := rt.Close(); err != nil {
		a.Logger.Warn("failed to release resources", slog.String("error", err.Error()))
	}
}

func (a *App) saveConfig() error {
	if err := a.Config.Validate(); err != nil {
		return err
	}
	return a.Config.Save(a.ConfigPath)
}

// IsUsage reports whether err was caused by invalid command line usage.
func IsUsage(err error) bool {
	return errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp)
}

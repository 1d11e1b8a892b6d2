package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/lifedraft/vrt-cli/internal/cmd/bugreport"
	configcmd "github.com/lifedraft/vrt-cli/internal/cmd/config"
	"github.com/lifedraft/vrt-cli/internal/cmd/insert"
	"github.com/lifedraft/vrt-cli/internal/cmd/login"
	"github.com/lifedraft/vrt-cli/internal/cmdutil"
)

var version = "dev"

// Exit codes besides 0 and 1.
const (
	exitPanic       = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func newRoot(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:    "vrt",
		Usage:   "Maintain VRT descriptors against the table-publishing server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config file"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug output to stderr"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			f.ConfigPath = cmd.String("config")
			f.Debug = cmd.Bool("debug")
			return ctx, nil
		},
		Commands: []*cli.Command{
			insert.NewCmd(f),
			login.NewCmd(f),
			login.NewLogoutCmd(f),
			configcmd.NewCmd(f),
			bugreport.NewCmd(f, version),
		},
	}
}

func run() (exitCode int) {
	f := &cmdutil.Factory{}

	defer func() {
		if r := recover(); r != nil {
			bugreport.HandlePanic(f, version, r)
			exitCode = exitPanic
		}
	}()
	// Sync fails with EINVAL when stderr is a terminal; nothing is buffered
	// beyond what the console core already wrote, so the error is dropped.
	defer func() { _ = f.Logger().Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := newRoot(f).Run(ctx, os.Args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

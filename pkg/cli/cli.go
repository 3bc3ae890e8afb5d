package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/cli/config"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/console"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

// globals holds configuration shared by every command
type globals struct {
	api     config.API
	file    config.File
	sentry  config.Sentry
	console *console.Console
}

type options struct {
	stdout io.Writer
	stderr io.Writer
}

type Option func(*options)

// WithOutput sets where progress output and logs are written. Default is os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// Run runs the CLI application
func Run(ctx context.Context, args []string, opts ...Option) error {
	o := &options{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	var (
		loggerCfg = config.Logger{Output: o.stderr}
		g         = globals{console: console.New(o.stdout, o.stderr)}
		logger    *slog.Logger
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var flags []cli.Flag
	flags = append(flags, loggerCfg.Flags()...)
	flags = append(flags, g.file.Flags()...)
	flags = append(flags, g.api.Flags()...)
	flags = append(flags, g.sentry.Flags()...)

	app := &cli.Command{
		Name:    "chiliseed",
		Usage:   "Build and deploy services on chiliseed",
		Version: types.Version,
		Flags:   flags,
		// build args are KEY=VALUE pairs whose values may contain commas
		DisableSliceFlagSeparator: true,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}
			slog.SetDefault(logger)

			if err := g.file.Load(); err != nil {
				return nil, err
			}
			g.file.ApplyAPI(c, &g.api)

			if err := g.sentry.Configure(); err != nil {
				return nil, err
			}

			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			cmdDeploy(&g),
			cmdWait(&g),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		g.console.Error("Error: %s", err.Error())
		g.sentry.Capture(err)
		return err
	}

	return nil
}

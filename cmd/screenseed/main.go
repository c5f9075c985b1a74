package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/screenseed/internal/config"
	"github.com/ehr/screenseed/internal/platform/seedio"
)

// app carries what every subcommand needs once the root command has loaded
// configuration.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	stderr io.Writer
}

func main() {
	a := &app{stderr: os.Stderr}
	a.logger = zerolog.New(a.stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := a.rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		a.logError(err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "screenseed",
		Short:         "Synthetic screening-program seed data for the analytics warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger, err := newLogger(cfg, a.stderr)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	root.AddCommand(a.generateCmd())
	root.AddCommand(a.expandCmd())
	root.AddCommand(a.summaryCmd())
	root.AddCommand(a.loadCmd())
	root.AddCommand(a.publishCmd())
	root.AddCommand(a.streamEventsCmd())
	root.AddCommand(a.measuresCmd())
	root.AddCommand(a.serveCmd())
	return root
}

// newLogger builds the process logger: JSON to w, or console output when
// running in development.
func newLogger(cfg *config.Config, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// logError reports a failed command once, at the process edge.
func (a *app) logError(err error) {
	if errors.Is(err, seedio.ErrInputNotFound) {
		a.logger.Error().Err(err).Msg("input file not found, nothing was changed")
		return
	}
	a.logger.Error().Err(err).Msg("command failed")
}

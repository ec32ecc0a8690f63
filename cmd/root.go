// Package cmd defines and implements the CLI commands for the award-digest
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/app"
	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/config"
	"github.com/JakeFAU/award-digest/internal/cycle"
	"github.com/JakeFAU/award-digest/internal/logging"
	"github.com/JakeFAU/award-digest/internal/registry"
)

const closeTimeout = 15 * time.Second

// Runtime is what the commands need from the application. *app.App
// satisfies it; tests inject a mock.
type Runtime interface {
	RunCycle(ctx context.Context, w award.Window) cycle.Report
	Serve(ctx context.Context) error
	Awards() award.Lister
	Registry() registry.Lookup
	Clock() award.Clock
	Close(ctx context.Context) error
}

// RuntimeFactory builds a Runtime from the loaded configuration.
type RuntimeFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runtime, error)

func defaultRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runtime, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// rootOptions carries state shared by every subcommand. It is filled in by
// the root command's PersistentPreRunE.
type rootOptions struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
	newRuntime RuntimeFactory
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{newRuntime: defaultRuntime})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "award-digest",
		Short: "Synchronizes public-procurement contract awards and mails a daily digest.",
		Long: `award-digest pulls contract-award notices from the public procurement
portal, keeps the construction and engineering awards, stores them idempotently
and hands a daily digest to the mail relay. It also serves an HTTP API and an
interactive listing with CSV and XLSX export.`,
		SilenceUsage: true,

		// Config and logger are built once here and passed down by value.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default searches ./config.yaml, /etc/award-digest/, $HOME/.award-digest)")

	cmd.AddCommand(
		newSyncCmd(opts),
		newServeCmd(opts),
		newAwardsCmd(opts),
		newCompanyCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg
	if o.logger == nil {
		logger, err := logging.New(cfg.Logging.Development)
		if err != nil {
			return fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		o.logger = logger
	}
	if o.newRuntime == nil {
		o.newRuntime = defaultRuntime
	}
	return nil
}

// withRuntime builds the application, runs fn and always closes it again.
func (o *rootOptions) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt Runtime) error) error {
	rt, err := o.newRuntime(cmd.Context(), o.cfg, o.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := rt.Close(ctx); cerr != nil {
			o.logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()
	return fn(cmd.Context(), rt)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

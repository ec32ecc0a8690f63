package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/cycle"
)

// ErrCycleFailed is returned by sync --strict when no award batch was fetched.
var ErrCycleFailed = errors.New("sync cycle failed")

type syncFlags struct {
	start    string
	end      string
	minValue float64
	strict   bool
	json     bool
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Runs one synchronization cycle",
		Long: `Fetches the award notices of the configured window (by default the
last window.lookback_days days), stores the construction and engineering
awards and hands the digest to the configured notifier.

The command logs a summary and exits 0 even when the portal could not be
reached, so unattended schedulers keep running. Pass --strict to exit non-zero
in that case.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt Runtime) error {
				return runSync(ctx, cmd, opts, rt, flags)
			})
		},
	}
	cmd.Flags().StringVar(&flags.start, "start", "", "first award date to fetch (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.end, "end", "", "last award date to fetch (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&flags.minValue, "min-value", 0, "lower bound on the contract value")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "exit non-zero when the cycle failed")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print the cycle report as JSON on stdout")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, opts *rootOptions, rt Runtime, flags syncFlags) error {
	w, err := syncWindow(cmd, opts, rt, flags)
	if err != nil {
		return err
	}

	report := rt.RunCycle(ctx, w)
	logSummary(opts.logger, report)

	if flags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}
	if flags.strict && report.Failed() {
		return fmt.Errorf("%w: %s", ErrCycleFailed, strings.Join(report.Errors, "; "))
	}
	return nil
}

func syncWindow(cmd *cobra.Command, opts *rootOptions, rt Runtime, flags syncFlags) (award.Window, error) {
	if (flags.start == "") != (flags.end == "") {
		return award.Window{}, errors.New("--start and --end must be given together")
	}
	var (
		w   award.Window
		err error
	)
	if flags.start != "" {
		w, err = parseWindow(flags.start, flags.end, opts.cfg.Window.MinValue)
	} else {
		w, err = opts.cfg.QueryWindow(rt.Clock().Now())
	}
	if err != nil {
		return award.Window{}, err
	}
	if cmd.Flags().Changed("min-value") {
		if flags.minValue < 0 {
			return award.Window{}, errors.New("--min-value must be >= 0")
		}
		w.MinValue = flags.minValue
	}
	return w, nil
}

func parseWindow(rawStart, rawEnd string, minValue float64) (award.Window, error) {
	start, err := award.ParseDate(rawStart)
	if err != nil {
		return award.Window{}, fmt.Errorf("--start: %w", err)
	}
	end, err := award.ParseDate(rawEnd)
	if err != nil {
		return award.Window{}, fmt.Errorf("--end: %w", err)
	}
	return award.NewWindow(start, end, minValue)
}

func logSummary(logger *zap.Logger, report cycle.Report) {
	fields := []zap.Field{
		zap.String("cycle_id", report.CycleID),
		zap.String("state", string(report.State)),
		zap.String("window_start", report.Window.StartDate()),
		zap.String("window_end", report.Window.EndDate()),
		zap.String("endpoint", report.Endpoint),
		zap.Int("fetched", report.FetchedCount),
		zap.Int("retained", report.RetainedCount),
		zap.Int("duplicates", report.DuplicateCount),
		zap.Int("persisted", report.PersistedCount),
		zap.Int("failed_chunks", report.FailedChunks),
		zap.Bool("digest_skipped", report.DigestSkipped),
		zap.Bool("delivered", report.Delivered),
		zap.Duration("duration", report.Duration()),
	}
	if report.Failed() {
		logger.Error("sync cycle failed", append(fields, zap.Strings("errors", report.Errors))...)
		return
	}
	if len(report.Errors) > 0 {
		logger.Warn("sync cycle degraded", append(fields, zap.Strings("errors", report.Errors))...)
		return
	}
	logger.Info("sync cycle complete", fields...)
}

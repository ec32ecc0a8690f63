// Package worker drains the cycle queue and runs one synchronization cycle per
// request.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/cycle"
	"github.com/JakeFAU/award-digest/internal/queue/memory"
)

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context, req award.CycleRequest) cycle.Report
}

// Config controls Worker behavior.
type Config struct {
	// CycleTimeout bounds a single cycle; zero means no extra deadline.
	CycleTimeout time.Duration
	// OnReport, when set, observes every finished cycle.
	OnReport func(cycle.Report)
}

// Worker consumes queue items and executes the sync pipeline.
type Worker struct {
	queue  award.Queue
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue award.Queue, runner Runner, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued cycle", zap.String("cycle_id", req.ID), zap.String("source", req.Source))
		w.process(ctx, req)
	}
}

func (w *Worker) process(ctx context.Context, req award.CycleRequest) {
	cycleCtx := ctx
	if w.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, w.cfg.CycleTimeout)
		defer cancel()
	}

	report := w.runner.Run(cycleCtx, req)
	fields := []zap.Field{
		zap.String("cycle_id", report.CycleID),
		zap.String("source", req.Source),
		zap.String("state", string(report.State)),
		zap.Int("persisted", report.PersistedCount),
	}
	if report.Failed() {
		w.logger.Warn("cycle failed", fields...)
	} else {
		w.logger.Info("cycle processed", fields...)
	}
	if w.cfg.OnReport != nil {
		w.cfg.OnReport(report)
	}
}

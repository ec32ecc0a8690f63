// Package scheduler submits the daily synchronization cycle on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
)

// DefaultSpec runs once a day at 06:00 UTC.
const DefaultSpec = "0 6 * * *"

// Submitter enqueues a cycle for a window.
type Submitter interface {
	Submit(ctx context.Context, w award.Window, source string) (award.CycleRequest, error)
}

// Config selects when cycles run and which window they query.
type Config struct {
	Spec         string
	LookbackDays int
	MinValue     float64
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cfg       Config
	submitter Submitter
	clock     award.Clock
	logger    *zap.Logger
	cron      *cron.Cron
	parser    cron.Parser
	entry     cron.EntryID
}

// New validates the cron expression and prepares the schedule.
func New(cfg Config, submitter Submitter, clock award.Clock, logger *zap.Logger) (*Scheduler, error) {
	if submitter == nil || clock == nil {
		return nil, errors.New("scheduler requires a submitter and a clock")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.Spec, err)
	}
	return &Scheduler{
		cfg:       cfg,
		submitter: submitter,
		clock:     clock,
		logger:    logger.Named("scheduler"),
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithParser(parser)),
		parser:    parser,
	}, nil
}

// Run registers the job and blocks until ctx is done, then waits for a
// running trigger to return.
func (s *Scheduler) Run(ctx context.Context) error {
	entry, err := s.cron.AddFunc(s.cfg.Spec, func() {
		if _, err := s.Trigger(ctx); err != nil {
			s.logger.Error("scheduled cycle not submitted", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}
	s.entry = entry
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("schedule", s.cfg.Spec),
		zap.Time("next_run", s.Next(s.clock.Now())),
	)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Trigger submits one cycle for the default lookback window.
func (s *Scheduler) Trigger(ctx context.Context) (award.CycleRequest, error) {
	w, err := award.DefaultWindow(s.clock.Now(), s.cfg.LookbackDays, s.cfg.MinValue)
	if err != nil {
		return award.CycleRequest{}, fmt.Errorf("build window: %w", err)
	}
	req, err := s.submitter.Submit(ctx, w, "cron")
	if err != nil {
		return award.CycleRequest{}, fmt.Errorf("submit cycle: %w", err)
	}
	s.logger.Info("scheduled cycle submitted",
		zap.String("cycle_id", req.ID),
		zap.String("window_start", w.StartDate()),
		zap.String("window_end", w.EndDate()),
	)
	return req, nil
}

// Next reports the first activation strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := s.parser.Parse(s.cfg.Spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.UTC())
}

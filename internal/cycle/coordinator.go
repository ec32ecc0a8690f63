// Package cycle drives one synchronization cycle: resolve an address, fetch,
// normalize, persist in chunks, then build and hand off the digest.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/digest"
	"github.com/JakeFAU/award-digest/internal/progress"
	"github.com/JakeFAU/award-digest/internal/sicap"
)

// DefaultBatchSize matches the largest chunk the REST store accepts comfortably.
const DefaultBatchSize = 100

// Resolver walks the candidate addresses for one window.
type Resolver interface {
	Resolve(ctx context.Context, w award.Window) sicap.Resolution
}

// Config tunes a Coordinator.
type Config struct {
	// Prefixes are the accepted classification-code prefixes.
	Prefixes []string
	// BatchSize bounds the records per store call.
	BatchSize int
	// PersistConcurrency > 1 sends chunks in parallel.
	PersistConcurrency int
	Digest             digest.Options
	// Topic is where the digest payload is published.
	Topic string
	// ArchivePrefix is the object-path prefix for archived digest bodies.
	ArchivePrefix string
}

// Deps are the collaborators of a Coordinator. Publisher and Archive are
// optional.
type Deps struct {
	Resolver  Resolver
	Store     award.Store
	Publisher award.Publisher
	Archive   award.BlobStore
	Progress  progress.Emitter
	Clock     award.Clock
	IDs       award.IDGenerator
	Hasher    award.Hasher
}

// Coordinator runs cycles. It holds no per-cycle state, so one instance may
// run cycles for overlapping windows; the store merges duplicates.
type Coordinator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates the dependencies and applies defaults.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Coordinator, error) {
	if deps.Resolver == nil {
		return nil, errors.New("cycle: resolver is required")
	}
	if deps.Store == nil {
		return nil, errors.New("cycle: store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("cycle: clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("cycle: id generator is required")
	}
	if deps.Progress == nil {
		deps.Progress = progress.NopEmitter{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PersistConcurrency <= 0 {
		cfg.PersistConcurrency = 1
	}
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = award.DefaultPrefixes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, deps: deps, logger: logger.Named("cycle")}, nil
}

// Run executes the cycle described by a queued request, reusing its ID.
func (c *Coordinator) Run(ctx context.Context, req award.CycleRequest) Report {
	return c.run(ctx, req.ID, req.Window)
}

// RunCycle executes one cycle over w with a fresh ID.
func (c *Coordinator) RunCycle(ctx context.Context, w award.Window) Report {
	return c.run(ctx, "", w)
}

func (c *Coordinator) run(ctx context.Context, id string, w award.Window) Report {
	cycleID := c.cycleID(id)
	report := Report{
		CycleID:   cycleID.String(),
		Window:    w,
		StartedAt: c.deps.Clock.Now(),
	}
	logger := c.logger.With(zap.String("cycle_id", report.CycleID))
	eventID := progress.UUIDToBytes(cycleID)
	c.emit(progress.Event{
		CycleID:     eventID,
		Stage:       progress.StageCycleStart,
		WindowStart: w.Start,
		WindowEnd:   w.End,
	})
	logger.Info("cycle started",
		zap.String("window_start", w.StartDate()),
		zap.String("window_end", w.EndDate()),
		zap.Float64("min_value", w.MinValue),
	)

	report.advance(StageResolving)
	res := c.deps.Resolver.Resolve(ctx, w)
	for _, attempt := range res.Tried {
		outcome := progress.OutcomeOK
		note := ""
		if attempt.Err != nil {
			outcome = progress.OutcomeFailed
			note = attempt.Err.Error()
		}
		c.emit(progress.Event{
			CycleID:  eventID,
			Stage:    progress.StageEndpointDone,
			Endpoint: attempt.Endpoint,
			Outcome:  outcome,
			Attempts: attempt.Attempts,
			Dur:      attempt.Duration,
			Note:     note,
		})
	}

	report.Endpoint = res.Endpoint
	if res.Err != nil {
		report.fail(res.Err)
		report.advance(StageFailed)
		logger.Error("cycle resolution failed; continuing with an empty batch", zap.Error(res.Err))
		return c.finish(logger, eventID, report)
	}

	report.FetchedCount = len(res.Page.Items)
	report.advance(StageFetched)

	records := award.Normalize(res.Page.Items, c.cfg.Prefixes)
	for i := range records {
		if records[i].AwardDate.IsZero() {
			records[i].AwardDate = w.Start
		}
	}
	report.RetainedCount = len(records)
	records, report.DuplicateCount = award.Dedupe(records)
	report.advance(StageNormalized)
	logger.Info("records normalized",
		zap.String("endpoint", res.Endpoint),
		zap.Int("fetched", report.FetchedCount),
		zap.Int("retained", report.RetainedCount),
		zap.Int("duplicates", report.DuplicateCount),
	)

	report.PersistedCount, report.FailedChunks = c.persist(ctx, logger, eventID, records, &report)
	report.advance(StagePersisted)

	c.digest(ctx, logger, eventID, records, &report)
	report.advance(StageDigested)

	return c.finish(logger, eventID, report)
}

func (c *Coordinator) finish(logger *zap.Logger, eventID [16]byte, report Report) Report {
	report.advance(StageDone)
	report.FinishedAt = c.deps.Clock.Now()
	outcome := report.Outcome()
	c.emit(progress.Event{
		CycleID:  eventID,
		Stage:    progress.StageCycleDone,
		Endpoint: report.Endpoint,
		Outcome:  outcome,
		Counts: progress.Counts{
			Fetched:      int64(report.FetchedCount),
			Retained:     int64(report.RetainedCount),
			Duplicates:   int64(report.DuplicateCount),
			Persisted:    int64(report.PersistedCount),
			FailedChunks: int64(report.FailedChunks),
		},
		Dur:  report.Duration(),
		Note: strings.Join(report.Errors, "; "),
	})
	logger.Info("cycle finished",
		zap.String("outcome", string(outcome)),
		zap.String("endpoint", report.Endpoint),
		zap.Int("fetched", report.FetchedCount),
		zap.Int("retained", report.RetainedCount),
		zap.Int("persisted", report.PersistedCount),
		zap.Int("failed_chunks", report.FailedChunks),
		zap.Bool("digest_skipped", report.DigestSkipped),
		zap.Bool("delivered", report.Delivered),
		zap.Duration("duration", report.Duration()),
	)
	return report
}

// persist upserts records in chunks. A rejected chunk is logged and counted;
// its siblings still run.
func (c *Coordinator) persist(
	ctx context.Context,
	logger *zap.Logger,
	eventID [16]byte,
	records []award.Record,
	report *Report,
) (persisted, failed int) {
	chunks := chunk(records, c.cfg.BatchSize)
	if len(chunks) == 0 {
		return 0, 0
	}
	errs := make([]error, len(chunks))
	var g errgroup.Group
	g.SetLimit(c.cfg.PersistConcurrency)
	for i, batch := range chunks {
		g.Go(func() error {
			err := c.deps.Store.Upsert(ctx, batch)
			if err != nil {
				errs[i] = &award.ChunkError{Index: i, Offset: i * c.cfg.BatchSize, Size: len(batch), Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, batch := range chunks {
		outcome := progress.OutcomeOK
		if err := errs[i]; err != nil {
			outcome = progress.OutcomeFailed
			failed++
			report.fail(err)
			logger.Error("persist chunk failed",
				zap.Int("chunk", i),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
		} else {
			persisted += len(batch)
		}
		c.emit(progress.Event{
			CycleID: eventID,
			Stage:   progress.StageChunkDone,
			Chunk:   i,
			Records: int64(len(batch)),
			Outcome: outcome,
		})
	}
	return persisted, failed
}

func (c *Coordinator) digest(
	ctx context.Context,
	logger *zap.Logger,
	eventID [16]byte,
	records []award.Record,
	report *Report,
) {
	opts := c.cfg.Digest
	if opts.Date.IsZero() {
		opts.Date = report.Window.End
	}
	payload, ok, err := digest.Build(records, opts)
	if err != nil {
		report.fail(fmt.Errorf("build digest: %w", err))
		logger.Error("digest build failed", zap.Error(err))
		c.emit(progress.Event{CycleID: eventID, Stage: progress.StageDigestDone, Outcome: progress.OutcomeFailed})
		return
	}
	if !ok {
		report.DigestSkipped = true
		logger.Info("digest skipped; nothing to send")
		c.emit(progress.Event{CycleID: eventID, Stage: progress.StageDigestDone, Outcome: progress.OutcomeSkipped})
		return
	}
	report.Digest = &payload

	outcome := progress.OutcomeOK
	if c.deps.Publisher != nil {
		msgID, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, payload)
		if err != nil {
			outcome = progress.OutcomeFailed
			report.fail(fmt.Errorf("deliver digest: %w", err))
			logger.Error("digest delivery failed", zap.String("topic", c.cfg.Topic), zap.Error(err))
		} else {
			report.Delivered = true
			report.MessageID = msgID
		}
	}
	if c.deps.Archive != nil {
		if err := c.archive(ctx, payload, report); err != nil {
			outcome = progress.OutcomeFailed
			report.fail(fmt.Errorf("archive digest: %w", err))
			logger.Error("digest archive failed", zap.Error(err))
		}
	}
	c.emit(progress.Event{
		CycleID: eventID,
		Stage:   progress.StageDigestDone,
		Outcome: outcome,
		Records: int64(payload.Count),
	})
	logger.Info("digest built",
		zap.Int("count", payload.Count),
		zap.Float64("total", payload.Total),
		zap.Int("omitted", payload.Omitted),
		zap.Bool("delivered", report.Delivered),
		zap.String("archive_uri", report.ArchiveURI),
	)
}

func (c *Coordinator) archive(ctx context.Context, payload digest.Payload, report *Report) error {
	body := []byte(payload.Body)
	if c.deps.Hasher != nil {
		sum, err := c.deps.Hasher.Hash(body)
		if err != nil {
			return fmt.Errorf("hash digest: %w", err)
		}
		report.DigestSHA256 = sum
	}
	objectPath := path.Join(c.cfg.ArchivePrefix, payload.GeneratedFor, report.CycleID+".html")
	uri, err := c.deps.Archive.PutObject(ctx, objectPath, "text/html; charset=utf-8", body)
	if err != nil {
		return err
	}
	report.ArchiveURI = uri
	return nil
}

func (c *Coordinator) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = c.deps.Clock.Now()
	}
	c.deps.Progress.Emit(evt)
}

// cycleID reuses a queued request's ID when it parses, otherwise mints a new one.
func (c *Coordinator) cycleID(requested string) uuid.UUID {
	if requested != "" {
		if id, err := uuid.Parse(requested); err == nil {
			return id
		}
		c.logger.Warn("ignoring malformed cycle id", zap.String("cycle_id", requested))
	}
	raw, err := c.deps.IDs.NewID()
	if err == nil {
		if id, parseErr := uuid.Parse(raw); parseErr == nil {
			return id
		}
	}
	return uuid.New()
}

func chunk(records []award.Record, size int) [][]award.Record {
	if len(records) == 0 {
		return nil
	}
	out := make([][]award.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}


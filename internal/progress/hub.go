package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes the Hub. Zero values take the defaults below.
type Config struct {
	// BufferSize bounds the queue between Emit and the flush loop.
	BufferSize int
	// MaxBatchEvents caps the events handed to a sink in one Consume call.
	MaxBatchEvents int
	// MaxBatchWait flushes a partial batch this long after its first event.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	// BaseContext parents sink calls and must outlive any single cycle.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

type flushReason string

const (
	flushFull      flushReason = "full"
	flushWait      flushReason = "wait"
	flushCycleDone flushReason = "cycle_done"
	flushClose     flushReason = "close"
)

// Hub batches cycle events on a single goroutine and hands every batch to each
// sink in order. Emit never blocks the cycle. A CYCLE_DONE event flushes the
// pending batch at once, so the run history shows a finished cycle without
// waiting for the batch timer.
type Hub struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger
	events chan Event
	stop   chan struct{}
	done   chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	closeCtx  context.Context

	dropMu      sync.Mutex
	dropped     map[[16]byte]int
	lastDropLog time.Time
}

// NewHub starts the flush loop over sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		logger: cfg.Logger,
		events: make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit queues evt. A zero TS is stamped with the current time and invalid
// events are discarded. When the queue is full the event is dropped and the
// loss is logged per cycle at most every few seconds.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closing.Load() {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.recordDrop(evt)
	}
}

// Close stops intake, delivers what is queued, closes the sinks and waits for
// the flush loop to exit. One-shot commands must call it before exiting. It is
// safe to call more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closing.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)

	var (
		pending  []Event
		timer    *time.Timer
		deadline <-chan time.Time
	)
	flush := func(reason flushReason) {
		if timer != nil {
			timer.Stop()
			timer, deadline = nil, nil
		}
		h.deliver(pending, reason)
		pending = nil
	}

	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			switch {
			case evt.Stage == StageCycleDone:
				flush(flushCycleDone)
			case len(pending) >= h.cfg.MaxBatchEvents:
				flush(flushFull)
			case timer == nil:
				timer = time.NewTimer(h.cfg.MaxBatchWait)
				deadline = timer.C
			}
		case <-deadline:
			timer, deadline = nil, nil
			h.deliver(pending, flushWait)
			pending = nil
		case <-h.stop:
			pending = h.drain(pending)
			flush(flushClose)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) drain(pending []Event) []Event {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
		default:
			return pending
		}
	}
}

// deliver hands events to every sink in slices of at most MaxBatchEvents.
func (h *Hub) deliver(events []Event, reason flushReason) {
	for start := 0; start < len(events); start += h.cfg.MaxBatchEvents {
		end := min(start+h.cfg.MaxBatchEvents, len(events))
		batch := events[start:end]
		for _, sink := range h.sinks {
			if sink == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
			err := sink.Consume(ctx, batch)
			cancel()
			if err != nil {
				h.logger.Warn("progress sink consume failed",
					zap.String("reason", string(reason)),
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
			}
		}
	}
}

func (h *Hub) recordDrop(evt Event) {
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	if h.dropped == nil {
		h.dropped = make(map[[16]byte]int)
	}
	h.dropped[evt.CycleID]++
	now := time.Now()
	if now.Sub(h.lastDropLog) < dropLogInterval {
		return
	}
	h.lastDropLog = now
	for id, n := range h.dropped {
		h.logger.Warn("progress events dropped due to backpressure",
			zap.String("cycle_id", Event{CycleID: id}.CycleUUID().String()),
			zap.Int("dropped", n),
		)
	}
	clear(h.dropped)
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

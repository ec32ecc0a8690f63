package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/award-digest/internal/progress"
	"github.com/JakeFAU/award-digest/internal/telemetry"
)

// PrometheusSink exports cycle metrics via Prometheus. It owns the collectors
// for cycles started/completed/running, endpoint attempts and persistence.
type PrometheusSink struct {
	cyclesStarted   prometheus.Counter
	cyclesCompleted *prometheus.CounterVec
	cyclesRunning   prometheus.Gauge
	cycleRuntime    *prometheus.HistogramVec

	endpointAttempts *prometheus.CounterVec
	recordsPersisted prometheus.Counter
	chunkFailures    prometheus.Counter
	digests          *prometheus.CounterVec

	tracker *cycleTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "award_cycles_started_total",
			Help: "Total sync cycles that have started.",
		}),
		cyclesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "award_cycles_completed_total",
			Help: "Total sync cycles completed partitioned by result.",
		}, []string{"result"}),
		cyclesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "award_cycles_running",
			Help: "Current number of running sync cycles.",
		}),
		cycleRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "award_cycle_runtime_seconds",
			Help:    "Wall time per completed sync cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		endpointAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "award_endpoint_attempts_total",
			Help: "HTTP attempts against award endpoints partitioned by host and outcome.",
		}, []string{"host", "outcome"}),
		recordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "award_records_persisted_total",
			Help: "Records accepted by the store.",
		}),
		chunkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "award_chunk_failures_total",
			Help: "Persistence chunks rejected by the store.",
		}),
		digests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "award_digests_total",
			Help: "Digests partitioned by outcome (ok, skipped, failed).",
		}, []string{"outcome"}),
		tracker: newCycleTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.cyclesStarted,
		s.cyclesCompleted,
		s.cyclesRunning,
		s.cycleRuntime,
		s.endpointAttempts,
		s.recordsPersisted,
		s.chunkFailures,
		s.digests,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCycleStart:
		s.cyclesStarted.Inc()
		if s.tracker.start(evt.CycleID) {
			s.cyclesRunning.Inc()
		}
	case progress.StageEndpointDone:
		attempts := evt.Attempts
		if attempts <= 0 {
			attempts = 1
		}
		s.endpointAttempts.WithLabelValues(telemetry.Host(evt.Endpoint), string(evt.Outcome)).Add(float64(attempts))
	case progress.StageChunkDone:
		if evt.Outcome == progress.OutcomeOK {
			s.recordsPersisted.Add(float64(evt.Records))
		} else {
			s.chunkFailures.Inc()
		}
	case progress.StageDigestDone:
		s.digests.WithLabelValues(string(evt.Outcome)).Inc()
	case progress.StageCycleDone:
		result := string(evt.Outcome)
		s.cyclesCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.cycleRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.CycleID) {
			s.cyclesRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type cycleTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newCycleTracker() *cycleTracker {
	return &cycleTracker{running: make(map[[16]byte]struct{})}
}

func (t *cycleTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *cycleTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

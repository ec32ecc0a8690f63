package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/award-digest/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	cycleID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{CycleID: cycleID, TS: now, Stage: progress.StageCycleStart, WindowStart: now, WindowEnd: now},
		{
			CycleID:  cycleID,
			TS:       now.Add(time.Second),
			Stage:    progress.StageEndpointDone,
			Endpoint: "https://primary.example/api/search",
			Outcome:  progress.OutcomeFailed,
			Attempts: 4,
		},
		{
			CycleID:  cycleID,
			TS:       now.Add(2 * time.Second),
			Stage:    progress.StageEndpointDone,
			Endpoint: "https://mirror.example/api/search",
			Outcome:  progress.OutcomeOK,
			Attempts: 1,
		},
		{CycleID: cycleID, TS: now, Stage: progress.StageChunkDone, Chunk: 0, Records: 100, Outcome: progress.OutcomeOK},
		{CycleID: cycleID, TS: now, Stage: progress.StageChunkDone, Chunk: 1, Records: 20, Outcome: progress.OutcomeFailed},
		{CycleID: cycleID, TS: now, Stage: progress.StageDigestDone, Outcome: progress.OutcomeOK},
		{CycleID: cycleID, TS: now, Stage: progress.StageCycleDone, Outcome: progress.OutcomeDegraded, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("degraded")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("ok")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning))

	require.InDelta(t, 4.0, testutil.ToFloat64(sink.endpointAttempts.WithLabelValues("primary.example", "failed")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.endpointAttempts.WithLabelValues("mirror.example", "ok")), 1e-9)
	require.InDelta(t, 100.0, testutil.ToFloat64(sink.recordsPersisted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.chunkFailures), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.digests.WithLabelValues("ok")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.cycleRuntime, "award_cycle_runtime_seconds"))
}

// TestPrometheusSinkRunningGaugeIgnoresDuplicates keeps the gauge honest when a start is redelivered.
func TestPrometheusSinkRunningGaugeIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	cycleID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{CycleID: cycleID, TS: time.Now(), Stage: progress.StageCycleStart}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesRunning))

	done := progress.Event{CycleID: cycleID, TS: time.Now(), Stage: progress.StageCycleDone, Outcome: progress.OutcomeOK}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("ok")))
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

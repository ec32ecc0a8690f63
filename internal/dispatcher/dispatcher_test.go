// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/clock/system"
	"github.com/JakeFAU/award-digest/internal/cycle"
	"github.com/JakeFAU/award-digest/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nopRunner{}, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("queue full")}
	dispatch := New(queue, nil, nil, nil)

	err := dispatch.Enqueue(context.Background(), award.CycleRequest{ID: "cycle-1"})
	require.EqualError(t, err, "queue enqueue: queue full")
}

func TestDispatcherSubmitMintsRequest(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{}
	now := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	dispatch := New(queue, nil, &seqIDs{}, system.Fixed(now))
	w, err := award.NewWindow(now.AddDate(0, 0, -1), now, 0)
	require.NoError(t, err)

	req, err := dispatch.Submit(context.Background(), w, "cron")
	require.NoError(t, err)
	require.Equal(t, "id-1", req.ID)
	require.Equal(t, "cron", req.Source)
	require.Equal(t, now.Unix(), req.Submitted)
	require.Equal(t, w, req.Window)
	require.Equal(t, []award.CycleRequest{req}, queue.got)
}

func TestDispatcherSubmitRequiresCollaborators(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{}, nil, nil, nil)
	_, err := dispatch.Submit(context.Background(), award.Window{}, "api")
	require.Error(t, err)
}

func TestDispatcherSubmitPropagatesQueueError(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("closed")}, nil, &seqIDs{}, system.Fixed(time.Unix(0, 0)))
	_, err := dispatch.Submit(context.Background(), award.Window{}, "api")
	require.EqualError(t, err, "queue enqueue: closed")
}

type blockingQueue struct {
	started chan struct{}
}

func (b *blockingQueue) Enqueue(context.Context, award.CycleRequest) error { return nil }

func (b *blockingQueue) Dequeue(ctx context.Context) (award.CycleRequest, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return award.CycleRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
	got []award.CycleRequest
}

func (e *errorQueue) Enqueue(_ context.Context, req award.CycleRequest) error {
	if e.err != nil {
		return e.err
	}
	e.got = append(e.got, req)
	return nil
}

func (e *errorQueue) Dequeue(context.Context) (award.CycleRequest, error) {
	return award.CycleRequest{}, errors.New("not implemented")
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type nopRunner struct{}

func (nopRunner) Run(_ context.Context, req award.CycleRequest) cycle.Report {
	return cycle.Report{CycleID: req.ID}
}

// Package dispatcher accepts cycle requests from the API and the scheduler and
// fans queue work out to the workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/worker"
)

// Dispatcher owns the queue front door and the worker pool.
type Dispatcher struct {
	queue   award.Queue
	workers []*worker.Worker
	ids     award.IDGenerator
	clock   award.Clock
}

// New creates a Dispatcher.
func New(queue award.Queue, workers []*worker.Worker, ids award.IDGenerator, clock award.Clock) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		ids:     ids,
		clock:   clock,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit mints a cycle ID for the window and enqueues the request.
func (d *Dispatcher) Submit(ctx context.Context, w award.Window, source string) (award.CycleRequest, error) {
	if d.ids == nil || d.clock == nil {
		return award.CycleRequest{}, errors.New("dispatcher missing id generator or clock")
	}
	id, err := d.ids.NewID()
	if err != nil {
		return award.CycleRequest{}, fmt.Errorf("generate cycle id: %w", err)
	}
	req := award.CycleRequest{
		ID:        id,
		Window:    w,
		Source:    source,
		Submitted: d.clock.Now().Unix(),
	}
	if err := d.Enqueue(ctx, req); err != nil {
		return award.CycleRequest{}, err
	}
	return req, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req award.CycleRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/parkwise/parkwise/jobs"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

type scheduler interface {
	Schedule(ctx context.Context, invoiceID int64) error
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    enqueuer
	inspector inspector
	recalc    scheduler
}

// NewJobsCLI initialises the CLI helpers against the given Redis endpoint.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts), recalc: jobs.NewClient(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.recalc != nil {
		if closeErr := c.recalc.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// RecalculateCommand queues a return batch recalculation for one invoice.
func (c *JobsCLI) RecalculateCommand(ctx context.Context, invoiceID int64, stdout, stderr io.Writer) int {
	if err := c.recalc.Schedule(ctx, invoiceID); err != nil {
		_, _ = fmt.Fprintf(stderr, "recalc: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "recalculation for invoice %d queued\n", invoiceID)
	return 0
}

// ReconcileCommand enqueues a stale batch sweep.
func (c *JobsCLI) ReconcileCommand(ctx context.Context, limit int, stdout, stderr io.Writer) int {
	task, err := jobs.NewReconcileOpenTask(limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 1
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "reconcile: enqueue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s (%s)\n", info.ID, info.Queue)
	return 0
}

// QueueCommand prints the default queue depth.
func (c *JobsCLI) QueueCommand(ctx context.Context, stdout, stderr io.Writer) int {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry)
	return 0
}

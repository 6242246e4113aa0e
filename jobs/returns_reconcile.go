package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/parkwise/parkwise/internal/jobs"
	"github.com/parkwise/parkwise/internal/returns"
)

const defaultReconcileLimit = 200

// ReturnsService is the part of the returns service the jobs drive.
type ReturnsService interface {
	Recalculate(ctx context.Context, invoiceID int64) (*returns.ReturnBatch, error)
	ReconcileStale(ctx context.Context, limit int) (int, error)
}

// KeyJanitor purges expired idempotency keys.
type KeyJanitor interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ReturnsRecalculateJob handles TaskReturnsRecalculate.
type ReturnsRecalculateJob struct {
	Service ReturnsService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes one invoice recalculation.
func (j *ReturnsRecalculateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("returns recalculate: dependencies not configured")
	}
	var payload ReturnsRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.InvoiceID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskReturnsRecalculate)
	batch, err := j.Service.Recalculate(ctx, payload.InvoiceID)
	if errors.Is(err, returns.ErrInvoiceNotFound) {
		j.logger().Warn("returns recalculate: invoice gone", slog.Int64("invoice", payload.InvoiceID))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if err != nil {
		return tracker.End(err)
	}
	j.logger().Info("return batch recalculated",
		slog.Int64("invoice", payload.InvoiceID),
		slog.String("refund_status", string(batch.RefundStatus)))
	return tracker.End(nil)
}

func (j *ReturnsRecalculateJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// ReconcileOpenJob handles TaskReturnsReconcileOpen: it refreshes stale
// return batches and purges expired idempotency keys.
type ReconcileOpenJob struct {
	Service   ReturnsService
	Keys      KeyJanitor
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes one sweep.
func (j *ReconcileOpenJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("returns reconcile: dependencies not configured")
	}
	var payload ReconcileOpenPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultReconcileLimit
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := j.Metrics.Track(TaskReturnsReconcileOpen)
	done, err := j.Service.ReconcileStale(ctx, payload.Limit)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.AddItems(TaskReturnsReconcileOpen, "invoices", int64(done))
	var purged int64
	if j.Keys != nil && j.Retention > 0 {
		purged, err = j.Keys.Cleanup(ctx, j.Retention)
		if err != nil {
			logger.Warn("idempotency cleanup", slog.Any("error", err))
		}
		j.Metrics.AddItems(TaskReturnsReconcileOpen, "idempotency_keys", purged)
	}
	logger.Info("returns reconcile sweep", slog.Int("invoices", done), slog.Int64("keys_purged", purged))
	return tracker.End(nil)
}

package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReturnsRecalculate rebuilds the return batch of one invoice.
	TaskReturnsRecalculate = "returns:recalculate"
	// TaskReturnsReconcileOpen sweeps invoices whose batch lags behind their returns.
	TaskReturnsReconcileOpen = "returns:reconcile-open"
)

const followUpDelay = 2 * time.Second

// ReturnsRecalculatePayload identifies the invoice to reconcile.
type ReturnsRecalculatePayload struct {
	InvoiceID int64 `json:"invoice_id"`
}

// ReturnsRecalculateTaskID is the task id shared by every queued
// recalculation of one invoice.
func ReturnsRecalculateTaskID(invoiceID int64) string {
	return TaskReturnsRecalculate + ":" + strconv.FormatInt(invoiceID, 10)
}

// NewReturnsRecalculateTask constructs the task. The task id is derived from
// the invoice so a pending recalculation absorbs later requests.
func NewReturnsRecalculateTask(invoiceID int64) (*asynq.Task, error) {
	body, err := returnsRecalculateBody(invoiceID)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReturnsRecalculate, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(ReturnsRecalculateTaskID(invoiceID)),
		asynq.MaxRetry(5),
	), nil
}

// newReturnsRecalculateFollowUp builds an unkeyed recalculation that runs
// after the one currently in flight for the invoice.
func newReturnsRecalculateFollowUp(invoiceID int64) (*asynq.Task, error) {
	body, err := returnsRecalculateBody(invoiceID)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReturnsRecalculate, body,
		asynq.Queue(QueueDefault),
		asynq.ProcessIn(followUpDelay),
		asynq.MaxRetry(5),
	), nil
}

func returnsRecalculateBody(invoiceID int64) ([]byte, error) {
	if invoiceID <= 0 {
		return nil, fmt.Errorf("returns recalculate: invalid invoice id %d", invoiceID)
	}
	return json.Marshal(ReturnsRecalculatePayload{InvoiceID: invoiceID})
}

// ReconcileOpenPayload bounds one sweep.
type ReconcileOpenPayload struct {
	Limit int `json:"limit"`
}

// NewReconcileOpenTask constructs the sweep task.
func NewReconcileOpenTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcileOpenPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReturnsReconcileOpen, body, asynq.Queue(QueueDefault)), nil
}

package returns

import "context"

// Recalculator schedules a batch recalculation after a return changes.
type Recalculator interface {
	Schedule(ctx context.Context, invoiceID int64) error
}

// InlineRecalculator recalculates synchronously within the request.
type InlineRecalculator struct {
	Service *Service
}

// Schedule implements Recalculator.
func (r InlineRecalculator) Schedule(ctx context.Context, invoiceID int64) error {
	_, err := r.Service.Recalculate(ctx, invoiceID)
	return err
}

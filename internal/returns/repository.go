package returns

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/parkwise/internal/platform/db"
)

const returnColumns = `id, card_id, invoice_id, reason, requested_at, approver_id, original_price, refund_price,
status, COALESCE(refund_method, ''), refunded_at`

const batchColumns = `invoice_id, total_cards, total_requested, total_approved, total_rejected,
total_original, total_refund, refund_status`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q db.Querier
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// Insert stores a new return request.
func (r *Repository) Insert(ctx context.Context, ret CardReturn) (*CardReturn, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO card_returns
(id, card_id, invoice_id, reason, requested_at, original_price, refund_price, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+returnColumns,
		ret.ID, ret.CardID, ret.InvoiceID, ret.Reason, ret.RequestedAt, ret.OriginalPrice, ret.RefundPrice, string(ret.Status))
	stored, err := scanReturn(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrReturnExists
		}
		return nil, err
	}
	return stored, nil
}

// Get fetches a return by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*CardReturn, error) {
	ret, err := scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM card_returns WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrReturnNotFound
	}
	return ret, err
}

// Advance updates the mutable fields when the row still has status from.
func (r *Repository) Advance(ctx context.Context, ret CardReturn, from ReturnStatus) (bool, error) {
	var method *string
	if ret.RefundMethod != "" {
		m := string(ret.RefundMethod)
		method = &m
	}
	tag, err := r.pool.Exec(ctx, `UPDATE card_returns
SET status = $3, approver_id = $4, refund_price = $5, refund_method = $6, refunded_at = $7, updated_at = NOW()
WHERE id = $1 AND status = $2`,
		ret.ID, string(from), string(ret.Status), ret.ApproverID, ret.RefundPrice, method, ret.RefundedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetBatch fetches the stored aggregate of an invoice.
func (r *Repository) GetBatch(ctx context.Context, invoiceID int64) (*ReturnBatch, error) {
	var (
		b      ReturnBatch
		status string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM return_batches WHERE invoice_id = $1`, invoiceID).
		Scan(&b.InvoiceID, &b.TotalCards, &b.TotalRequested, &b.TotalApproved, &b.TotalRejected,
			&b.TotalOriginal, &b.TotalRefund, &status)
	if db.IsNoRows(err) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	b.RefundStatus = RefundStatus(status)
	return &b, nil
}

// StaleInvoices lists invoices with return rows newer than their batch.
func (r *Repository) StaleInvoices(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.invoice_id
FROM card_returns r
LEFT JOIN return_batches b ON b.invoice_id = r.invoice_id
GROUP BY r.invoice_id, b.calculated_at
HAVING b.calculated_at IS NULL OR MAX(r.updated_at) > b.calculated_at
ORDER BY r.invoice_id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountInvoiceCards counts the cards sold on an invoice.
func (t *txRepo) CountInvoiceCards(ctx context.Context, invoiceID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx, `SELECT COUNT(ic.card_id)
FROM invoices i
LEFT JOIN invoice_cards ic ON ic.invoice_id = i.id
WHERE i.id = $1
GROUP BY i.id`, invoiceID).Scan(&count)
	if db.IsNoRows(err) {
		return 0, ErrInvoiceNotFound
	}
	return count, err
}

// ListByInvoice lists an invoice's returns in a stable order.
func (t *txRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]CardReturn, error) {
	rows, err := t.q.Query(ctx, `SELECT `+returnColumns+` FROM card_returns WHERE invoice_id = $1 ORDER BY card_id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CardReturn
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ret)
	}
	return out, rows.Err()
}

// UpsertBatch writes the single aggregate row of an invoice.
func (t *txRepo) UpsertBatch(ctx context.Context, b ReturnBatch) error {
	_, err := t.q.Exec(ctx, `INSERT INTO return_batches (`+batchColumns+`, calculated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (invoice_id) DO UPDATE SET
    total_cards = EXCLUDED.total_cards,
    total_requested = EXCLUDED.total_requested,
    total_approved = EXCLUDED.total_approved,
    total_rejected = EXCLUDED.total_rejected,
    total_original = EXCLUDED.total_original,
    total_refund = EXCLUDED.total_refund,
    refund_status = EXCLUDED.refund_status,
    calculated_at = EXCLUDED.calculated_at`,
		b.InvoiceID, b.TotalCards, b.TotalRequested, b.TotalApproved, b.TotalRejected,
		b.TotalOriginal, b.TotalRefund, string(b.RefundStatus))
	return err
}

// UpdateInvoiceStatus projects the refund status onto the invoice.
func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, invoiceID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrInvoiceNotFound, invoiceID)
	}
	return nil
}

func scanReturn(row pgx.Row) (*CardReturn, error) {
	var (
		ret    CardReturn
		status string
		method string
	)
	if err := row.Scan(&ret.ID, &ret.CardID, &ret.InvoiceID, &ret.Reason, &ret.RequestedAt, &ret.ApproverID,
		&ret.OriginalPrice, &ret.RefundPrice, &status, &method, &ret.RefundedAt); err != nil {
		return nil, err
	}
	ret.Status = ReturnStatus(status)
	ret.RefundMethod = RefundMethod(method)
	return &ret, nil
}

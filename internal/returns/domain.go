package returns

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/shared"
)

// ReturnStatus represents the stage of a card return request.
type ReturnStatus string

const (
	StatusPending   ReturnStatus = "PENDING"
	StatusApproved  ReturnStatus = "APPROVED"
	StatusRejected  ReturnStatus = "REJECTED"
	StatusProcessed ReturnStatus = "PROCESSED"
)

// IsValid checks if the status is valid.
func (s ReturnStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusProcessed:
		return true
	}
	return false
}

// counted reports whether the row contributes to the approved totals.
func (s ReturnStatus) counted() bool {
	return s == StatusApproved || s == StatusProcessed
}

// next lists the statuses each status may advance to.
var next = map[ReturnStatus][]ReturnStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusProcessed},
}

// CanAdvanceTo reports whether s may move to target.
func (s ReturnStatus) CanAdvanceTo(target ReturnStatus) bool {
	for _, allowed := range next[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// RefundMethod is how the refund was paid out.
type RefundMethod string

const (
	MethodCash         RefundMethod = "CASH"
	MethodBankTransfer RefundMethod = "BANK_TRANSFER"
	MethodCard         RefundMethod = "CARD"
)

// IsValid checks if the method is valid.
func (m RefundMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard:
		return true
	}
	return false
}

// RefundStatus is the aggregate refund state of an invoice.
type RefundStatus string

const (
	RefundZero             RefundStatus = "ZERO"
	RefundPartial          RefundStatus = "PARTIAL"
	RefundFull             RefundStatus = "FULL"
	RefundPartialProcessed RefundStatus = "PARTIAL_PROCESSED"
	RefundFullProcessed    RefundStatus = "FULL_PROCESSED"
)

// InvoiceStatus is the projection written back onto an invoice.
type InvoiceStatus string

const (
	InvoiceFullyReturned     InvoiceStatus = "FULLY_RETURNED"
	InvoicePartiallyReturned InvoiceStatus = "PARTIALLY_RETURNED"
)

// InvoiceStatus maps the refund status onto the invoice. ZERO leaves the
// invoice untouched and reports false.
func (s RefundStatus) InvoiceStatus() (InvoiceStatus, bool) {
	switch s {
	case RefundFull, RefundFullProcessed:
		return InvoiceFullyReturned, true
	case RefundPartial, RefundPartialProcessed:
		return InvoicePartiallyReturned, true
	}
	return "", false
}

var (
	ErrReturnNotFound       = fmt.Errorf("%w: card return", shared.ErrNotFound)
	ErrInvoiceNotFound      = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrBatchNotFound        = fmt.Errorf("%w: return batch not calculated yet", shared.ErrNotFound)
	ErrReturnExists         = fmt.Errorf("%w: card already has a return request", shared.ErrConflict)
	ErrInvalidStatusChange  = fmt.Errorf("%w: return status can only advance", shared.ErrInvalidState)
	ErrApproverRequired     = fmt.Errorf("%w: approver required", shared.ErrInvalidState)
	ErrRefundMethodRequired = fmt.Errorf("%w: refund method required", shared.ErrInvalidState)
	ErrUnknownRefundMethod  = fmt.Errorf("%w: unknown refund method", shared.ErrValidation)
	ErrRefundOutOfRange     = fmt.Errorf("%w: refund price must be between zero and the original price", shared.ErrValidation)
	ErrRefundScale          = fmt.Errorf("%w: refund price carries at most two decimals", shared.ErrValidation)
)

// CardReturn is a request to return one sold card for a refund.
type CardReturn struct {
	ID            uuid.UUID       `json:"id"`
	CardID        int64           `json:"card_id"`
	InvoiceID     int64           `json:"invoice_id"`
	Reason        string          `json:"reason"`
	RequestedAt   time.Time       `json:"requested_at"`
	ApproverID    *int64          `json:"approver_id,omitempty"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	RefundPrice   decimal.Decimal `json:"refund_price"`
	Status        ReturnStatus    `json:"status"`
	RefundMethod  RefundMethod    `json:"refund_method,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
}

// ValidateRefund checks 0 <= refund <= original.
func ValidateRefund(refund, original decimal.Decimal) error {
	if refund.IsNegative() || refund.GreaterThan(original) {
		return ErrRefundOutOfRange
	}
	if !shared.FitsMoneyScale(refund) {
		return ErrRefundScale
	}
	return nil
}

// ReturnBatch is the per-invoice aggregate of card returns. It holds no
// timestamps so recomputing it from unchanged rows yields identical bytes.
type ReturnBatch struct {
	InvoiceID      int64           `json:"invoice_id"`
	TotalCards     int             `json:"total_cards"`
	TotalRequested int             `json:"total_requested"`
	TotalApproved  int             `json:"total_approved"`
	TotalRejected  int             `json:"total_rejected"`
	TotalOriginal  decimal.Decimal `json:"total_original"`
	TotalRefund    decimal.Decimal `json:"total_refund"`
	RefundStatus   RefundStatus    `json:"refund_status"`
}

// Aggregate derives the return batch of an invoice with cardCount cards
// from its return rows.
func Aggregate(invoiceID int64, cardCount int, rows []CardReturn) ReturnBatch {
	batch := ReturnBatch{
		InvoiceID:      invoiceID,
		TotalCards:     cardCount,
		TotalRequested: len(rows),
		TotalOriginal:  decimal.Zero,
		TotalRefund:    decimal.Zero,
	}
	allProcessed, anyProcessed := len(rows) > 0, false
	for _, row := range rows {
		batch.TotalOriginal = batch.TotalOriginal.Add(row.OriginalPrice)
		switch {
		case row.Status.counted():
			batch.TotalApproved++
			batch.TotalRefund = batch.TotalRefund.Add(row.RefundPrice)
		case row.Status == StatusRejected:
			batch.TotalRejected++
		}
		if row.Status == StatusProcessed {
			anyProcessed = true
		} else {
			allProcessed = false
		}
	}
	switch {
	case batch.TotalApproved == 0:
		batch.RefundStatus = RefundZero
	case batch.TotalApproved == cardCount && allProcessed:
		batch.RefundStatus = RefundFullProcessed
	case batch.TotalApproved == cardCount:
		batch.RefundStatus = RefundFull
	case anyProcessed:
		batch.RefundStatus = RefundPartialProcessed
	default:
		batch.RefundStatus = RefundPartial
	}
	return batch
}

// RequestInput carries a new return request.
type RequestInput struct {
	CardID int64
	Reason string
	// RefundPrice defaults to the original price when nil.
	RefundPrice *decimal.Decimal
	OperatorID  int64
}

// ApproveInput carries an approval.
type ApproveInput struct {
	ID         uuid.UUID
	ApproverID int64
	// RefundPrice replaces the requested refund when set.
	RefundPrice *decimal.Decimal
}

// ProcessInput carries a refund payout.
type ProcessInput struct {
	ID         uuid.UUID
	Method     RefundMethod
	OperatorID int64
}

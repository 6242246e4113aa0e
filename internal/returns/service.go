// Package returns handles card return requests and reconciles the per-invoice
// refund aggregate.
package returns

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/shared"
)

// RepositoryPort defines data access for card returns.
type RepositoryPort interface {
	// Insert stores a return; a second return for the card yields ErrReturnExists.
	Insert(ctx context.Context, ret CardReturn) (*CardReturn, error)
	Get(ctx context.Context, id uuid.UUID) (*CardReturn, error)
	// Advance persists ret only while the stored status still equals from.
	Advance(ctx context.Context, ret CardReturn, from ReturnStatus) (bool, error)
	GetBatch(ctx context.Context, invoiceID int64) (*ReturnBatch, error)
	// StaleInvoices lists invoices whose returns changed after their batch was written.
	StaleInvoices(ctx context.Context, limit int) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the reads and writes of one recalculation.
type TxRepository interface {
	CountInvoiceCards(ctx context.Context, invoiceID int64) (int, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]CardReturn, error)
	UpsertBatch(ctx context.Context, batch ReturnBatch) error
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error
}

// InvoiceLookup finds the invoice line a card was sold on.
type InvoiceLookup interface {
	FindInvoiceCard(ctx context.Context, cardID int64) (*registry.InvoiceCard, error)
}

// Observer receives reconciliation notifications.
type Observer interface {
	ReturnBatchRecalculated(status string)
}

// Service handles the return workflow and reconciliation.
type Service struct {
	repo     RepositoryPort
	invoices InvoiceLookup
	audit    shared.AuditRecorder
	observer Observer
	logger   *slog.Logger
	group    singleflight.Group
	// requests counts Recalculate calls; a run records the count it saw
	// before reading so later callers can tell whether it covers them.
	requests atomic.Uint64
	now      func() time.Time
}

// NewService builds Service instance. observer may be nil.
func NewService(repo RepositoryPort, invoices InvoiceLookup, audit shared.AuditRecorder, observer Observer, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invoices: invoices, audit: audit, observer: observer, logger: logger, now: time.Now}
}

// Request opens a return for a card against the invoice it was sold on.
func (s *Service) Request(ctx context.Context, input RequestInput) (*CardReturn, error) {
	line, err := s.invoices.FindInvoiceCard(ctx, input.CardID)
	if err != nil {
		return nil, err
	}
	refund := line.Price
	if input.RefundPrice != nil {
		refund = *input.RefundPrice
	}
	if err := ValidateRefund(refund, line.Price); err != nil {
		return nil, err
	}
	stored, err := s.repo.Insert(ctx, CardReturn{
		ID:            uuid.New(),
		CardID:        line.CardID,
		InvoiceID:     line.InvoiceID,
		Reason:        input.Reason,
		RequestedAt:   s.now().UTC(),
		OriginalPrice: line.Price,
		RefundPrice:   refund,
		Status:        StatusPending,
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, input.OperatorID, "return.request", stored, map[string]any{
		"invoice_id":   stored.InvoiceID,
		"refund_price": stored.RefundPrice.String(),
	})
	return stored, nil
}

// Approve accepts a pending return, optionally adjusting the refund.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (*CardReturn, error) {
	if input.ApproverID <= 0 {
		return nil, ErrApproverRequired
	}
	return s.advance(ctx, input.ID, StatusApproved, input.ApproverID, func(ret *CardReturn) error {
		if input.RefundPrice != nil {
			if err := ValidateRefund(*input.RefundPrice, ret.OriginalPrice); err != nil {
				return err
			}
			ret.RefundPrice = *input.RefundPrice
		}
		approver := input.ApproverID
		ret.ApproverID = &approver
		return nil
	})
}

// Reject declines a pending return.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, approverID int64) (*CardReturn, error) {
	if approverID <= 0 {
		return nil, ErrApproverRequired
	}
	return s.advance(ctx, id, StatusRejected, approverID, func(ret *CardReturn) error {
		ret.ApproverID = &approverID
		return nil
	})
}

// Process records the payout of an approved return.
func (s *Service) Process(ctx context.Context, input ProcessInput) (*CardReturn, error) {
	if input.Method == "" {
		return nil, ErrRefundMethodRequired
	}
	if !input.Method.IsValid() {
		return nil, ErrUnknownRefundMethod
	}
	return s.advance(ctx, input.ID, StatusProcessed, input.OperatorID, func(ret *CardReturn) error {
		if ret.ApproverID == nil {
			return ErrApproverRequired
		}
		now := s.now().UTC()
		ret.RefundMethod = input.Method
		ret.RefundedAt = &now
		return nil
	})
}

// Get returns a card return.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CardReturn, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) advance(ctx context.Context, id uuid.UUID, target ReturnStatus, actor int64, apply func(*CardReturn) error) (*CardReturn, error) {
	ret, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := ret.Status
	if !from.CanAdvanceTo(target) {
		return nil, ErrInvalidStatusChange
	}
	if err := apply(ret); err != nil {
		return nil, err
	}
	ret.Status = target
	ok, err := s.repo.Advance(ctx, *ret, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidStatusChange
	}
	s.record(ctx, actor, "return."+strings.ToLower(string(target)), ret, map[string]any{
		"from":         string(from),
		"refund_price": ret.RefundPrice.String(),
	})
	return ret, nil
}

// Recalculate rebuilds the return batch of an invoice from its return rows
// and projects the refund status onto the invoice. Concurrent calls for the
// same invoice share a run, but a caller never accepts a run that read the
// rows before the call arrived: it waits and starts a fresh one instead.
func (s *Service) Recalculate(ctx context.Context, invoiceID int64) (*ReturnBatch, error) {
	ticket := s.requests.Add(1)
	key := strconv.FormatInt(invoiceID, 10)
	for {
		ch := s.group.DoChan(key, func() (any, error) {
			// the shared run outlives any single caller's cancellation
			return s.recalculate(context.WithoutCancel(ctx), invoiceID)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			run := res.Val.(recalcRun)
			if run.seen < ticket {
				continue
			}
			batch := *run.batch
			return &batch, nil
		}
	}
}

type recalcRun struct {
	batch *ReturnBatch
	seen  uint64
}

func (s *Service) recalculate(ctx context.Context, invoiceID int64) (recalcRun, error) {
	var (
		batch ReturnBatch
		seen  uint64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// every call counted here committed its change before this snapshot
		seen = s.requests.Load()
		cards, err := tx.CountInvoiceCards(ctx, invoiceID)
		if err != nil {
			return err
		}
		rows, err := tx.ListByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		batch = Aggregate(invoiceID, cards, rows)
		if err := tx.UpsertBatch(ctx, batch); err != nil {
			return err
		}
		if status, ok := batch.RefundStatus.InvoiceStatus(); ok {
			return tx.UpdateInvoiceStatus(ctx, invoiceID, status)
		}
		return nil
	})
	if err != nil {
		return recalcRun{}, err
	}
	if s.observer != nil {
		s.observer.ReturnBatchRecalculated(string(batch.RefundStatus))
	}
	s.logger.Debug("return batch recalculated",
		slog.Int64("invoice", invoiceID),
		slog.String("refund_status", string(batch.RefundStatus)),
		slog.Int("approved", batch.TotalApproved))
	return recalcRun{batch: &batch, seen: seen}, nil
}

// Batch returns the last stored aggregate of an invoice.
func (s *Service) Batch(ctx context.Context, invoiceID int64) (*ReturnBatch, error) {
	return s.repo.GetBatch(ctx, invoiceID)
}

// ReconcileStale recalculates up to limit invoices whose batch lags behind
// their return rows and reports how many were refreshed.
func (s *Service) ReconcileStale(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.StaleInvoices(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		if _, err := s.Recalculate(ctx, id); err != nil {
			s.logger.Warn("reconcile invoice returns", slog.Int64("invoice", id), slog.Any("error", err))
			continue
		}
		done++
	}
	return done, nil
}

func (s *Service) record(ctx context.Context, actor int64, action string, ret *CardReturn, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "card_return",
		EntityID: ret.ID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("return audit", slog.Any("error", err), slog.String("return", ret.ID.String()))
	}
}

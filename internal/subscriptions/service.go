// Package subscriptions validates and sells parking subscriptions.
package subscriptions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/shared"
)

// RepositoryPort defines data access for subscriptions.
type RepositoryPort interface {
	Insert(ctx context.Context, sub Subscription) (*Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindCovering returns a subscription of the card covering at, or nil.
	FindCovering(ctx context.Context, cardID int64, at time.Time) (*Subscription, error)
	ListByCard(ctx context.Context, cardID int64) ([]Subscription, error)
	// SetSuspended flips the flag only when it currently differs; false means
	// the row was already in the requested state.
	SetSuspended(ctx context.Context, id uuid.UUID, suspended bool) (bool, error)
}

// Directory resolves the collaborators a purchase references.
type Directory interface {
	FindCard(ctx context.Context, id int64) (*registry.Card, error)
	FindVehicle(ctx context.Context, id int64) (*registry.Vehicle, error)
	FindSubscriptionType(ctx context.Context, id int64) (*registry.SubscriptionType, error)
}

// PriceQuoter prices a subscription rule at a point in time.
type PriceQuoter interface {
	QuoteSubscriptionPrice(ctx context.Context, ruleID int64, at time.Time) (decimal.Decimal, error)
}

// Service handles subscription lookups and lifecycle.
type Service struct {
	repo   RepositoryPort
	dir    Directory
	prices PriceQuoter
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, dir Directory, prices PriceQuoter, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dir: dir, prices: prices, audit: audit, logger: logger, now: time.Now}
}

// HasActiveSubscription returns a subscription of the card covering at, or
// nil when the card has none. Absence is not an error.
func (s *Service) HasActiveSubscription(ctx context.Context, cardID int64, at time.Time) (*Subscription, error) {
	return s.repo.FindCovering(ctx, cardID, at)
}

// Purchase sells a subscription. The window length comes from the catalog
// entry and the price from the subscription lineage at the start date.
func (s *Service) Purchase(ctx context.Context, input PurchaseInput) (*Subscription, error) {
	card, err := s.dir.FindCard(ctx, input.CardID)
	if err != nil {
		return nil, err
	}
	start := input.StartDate
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC()
	if !card.Usable(start) {
		return nil, ErrCardUnusable
	}
	vehicle, err := s.dir.FindVehicle(ctx, input.VehicleID)
	if err != nil {
		return nil, err
	}
	subType, err := s.dir.FindSubscriptionType(ctx, input.SubscriptionTypeID)
	if err != nil {
		return nil, err
	}
	if subType.DurationDays <= 0 {
		return nil, ErrInvalidDuration
	}
	price, err := s.prices.QuoteSubscriptionPrice(ctx, subType.PricingRuleID, start)
	if err != nil {
		return nil, err
	}
	sub := Subscription{
		ID:                 uuid.New(),
		CardID:             card.ID,
		VehicleID:          vehicle.ID,
		VehicleTypeID:      vehicle.VehicleTypeID,
		SubscriptionTypeID: subType.ID,
		PricePaid:          price,
		StartDate:          start,
		EndDate:            start.AddDate(0, 0, subType.DurationDays),
		CreatedAt:          s.now().UTC(),
	}
	stored, err := s.repo.Insert(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.record(ctx, input.OperatorID, "subscription.purchase", stored.ID, map[string]any{
		"card_id":    stored.CardID,
		"price_paid": stored.PricePaid.String(),
		"end_date":   stored.EndDate,
	})
	return stored, nil
}

// Suspend stops a subscription from covering any time until resumed.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, operatorID int64) (*Subscription, error) {
	return s.setSuspended(ctx, id, true, operatorID)
}

// Resume lifts a suspension.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, operatorID int64) (*Subscription, error) {
	return s.setSuspended(ctx, id, false, operatorID)
}

// ListByCard returns every subscription of a card, newest first.
func (s *Service) ListByCard(ctx context.Context, cardID int64) ([]Subscription, error) {
	return s.repo.ListByCard(ctx, cardID)
}

func (s *Service) setSuspended(ctx context.Context, id uuid.UUID, suspended bool, operatorID int64) (*Subscription, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	changed, err := s.repo.SetSuspended(ctx, id, suspended)
	if err != nil {
		return nil, err
	}
	if !changed {
		if suspended {
			return nil, ErrAlreadySuspended
		}
		return nil, ErrNotSuspended
	}
	action := "subscription.resume"
	if suspended {
		action = "subscription.suspend"
	}
	s.record(ctx, operatorID, action, id, nil)
	return s.repo.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, actor int64, action string, id uuid.UUID, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "subscription",
		EntityID: id.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("subscription audit", slog.Any("error", err), slog.String("subscription", id.String()))
	}
}

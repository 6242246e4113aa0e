package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/shared"
)

// RepositoryPort defines data access methods for price records.
type RepositoryPort interface {
	// Insert stores rec; a duplicate (key, effective_from) yields ErrDuplicateEffective.
	Insert(ctx context.Context, rec Record) (*Record, error)
	// Latest returns the newest record effective before at (or at, when
	// inclusive), or nil when there is none.
	Latest(ctx context.Context, key DimensionKey, at time.Time, inclusive bool) (*Record, error)
	ListByKey(ctx context.Context, key DimensionKey) ([]Record, error)
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// CountReferencing counts records whose predecessor is id.
	CountReferencing(ctx context.Context, id uuid.UUID) (int, error)
	// DeleteIfHead removes id only when no later record exists for its key.
	DeleteIfHead(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service handles price record business logic.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// Insert appends a new version to the record's lineage. Existing records are
// never modified.
func (s *Service) Insert(ctx context.Context, input NewRecordInput) (*Record, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	effective := input.EffectiveFrom
	if effective.IsZero() {
		effective = now
	}
	rec := Record{
		ID:                  uuid.New(),
		Key:                 input.Key,
		Price:               input.Price,
		DayPrice:            input.DayPrice,
		FirstHourPrice:      input.FirstHourPrice,
		AdditionalHourPrice: input.AdditionalHourPrice,
		EffectiveFrom:       effective.UTC(),
		ChangedBy:           input.ChangedBy,
		Reason:              input.Reason,
		CreatedAt:           now.UTC(),
	}
	stored, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	prev, err := s.repo.Latest(ctx, stored.Key, stored.EffectiveFrom, false)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		id := prev.ID
		stored.Previous = &id
	}
	if err := s.invalidate(ctx, stored.Key); err != nil {
		return nil, err
	}
	s.record(ctx, stored.ChangedBy, "pricing.insert", stored, map[string]any{
		"key":            stored.Key.String(),
		"effective_from": stored.EffectiveFrom,
		"reason":         stored.Reason,
	})
	return stored, nil
}

// Resolve returns the record in force for key at the given time.
func (s *Service) Resolve(ctx context.Context, key DimensionKey, at time.Time) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var rec *Record
	if s.cache != nil {
		records, err := s.cache.Lineage(ctx, key, func(ctx context.Context) ([]Record, error) {
			return s.repo.ListByKey(ctx, key)
		})
		if err != nil {
			return nil, err
		}
		rec = Resolve(records, at)
	} else {
		found, err := s.repo.Latest(ctx, key, at, true)
		if err != nil {
			return nil, err
		}
		rec = found
	}
	if rec == nil {
		return nil, ErrRuleNotFound
	}
	return rec, nil
}

// History returns the whole lineage of key, oldest first, with Previous links.
func (s *Service) History(ctx context.Context, key DimensionKey) ([]Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return Chain(records), nil
}

// Delete removes a record that no later record supersedes.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, operatorID int64) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountReferencing(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrRecordReferenced
	}
	deleted, err := s.repo.DeleteIfHead(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		// a successor was inserted between the count and the delete
		return ErrRecordReferenced
	}
	if err := s.invalidate(ctx, rec.Key); err != nil {
		return err
	}
	s.record(ctx, operatorID, "pricing.delete", rec, map[string]any{"key": rec.Key.String()})
	return nil
}

// QuoteCardPrice returns the card price for a category at the given time.
func (s *Service) QuoteCardPrice(ctx context.Context, categoryID int64, at time.Time) (decimal.Decimal, error) {
	rec, err := s.Resolve(ctx, CardPriceKey(categoryID), at)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Price, nil
}

// QuoteSubscriptionPrice returns the subscription price for a pricing rule at the given time.
func (s *Service) QuoteSubscriptionPrice(ctx context.Context, ruleID int64, at time.Time) (decimal.Decimal, error) {
	rec, err := s.Resolve(ctx, SubscriptionKey(ruleID), at)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Price, nil
}

// invalidate drops cached lineages after a write to key.
func (s *Service) invalidate(ctx context.Context, key DimensionKey) error {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Error("pricing cache bump", slog.Any("error", err), slog.String("key", key.String()))
		return fmt.Errorf("%w: %v", ErrCacheInvalidation, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor int64, action string, rec *Record, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "pricing_record",
		EntityID: rec.ID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("pricing audit", slog.Any("error", err), slog.String("record", rec.ID.String()))
	}
}

// Package sessions runs the entry/exit lifecycle of parking visits.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/parkwise/parkwise/internal/fees"
	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/shared"
	"github.com/parkwise/parkwise/internal/subscriptions"
)

// RepositoryPort defines data access for sessions.
type RepositoryPort interface {
	// Insert stores an IN_PARKING session; a second active session for the
	// same card yields ErrActiveSessionExists.
	Insert(ctx context.Context, s Session) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// FindActiveByCard returns the card's IN_PARKING session, or nil.
	FindActiveByCard(ctx context.Context, cardID int64) (*Session, error)
	ListActive(ctx context.Context) ([]Session, error)
	// Close persists the exit fields only while the stored row is still
	// IN_PARKING; false means another request closed it first.
	Close(ctx context.Context, s Session) (bool, error)
}

// Directory resolves entry and exit collaborators.
type Directory interface {
	FindCard(ctx context.Context, id int64) (*registry.Card, error)
	FindCardByUID(ctx context.Context, uid string) (*registry.Card, error)
	FindVehicle(ctx context.Context, id int64) (*registry.Vehicle, error)
	FindVehicleType(ctx context.Context, id int64) (*registry.VehicleType, error)
	FindEmployee(ctx context.Context, id int64) (*registry.Employee, error)
}

// SubscriptionChecker reports fee-exempting subscriptions.
type SubscriptionChecker interface {
	HasActiveSubscription(ctx context.Context, cardID int64, at time.Time) (*subscriptions.Subscription, error)
}

// FeeQuoter prices a stay.
type FeeQuoter interface {
	Quote(ctx context.Context, categoryID, vehicleTypeID int64, entry, exit time.Time) (fees.Quote, error)
}

// Observer receives lifecycle notifications.
type Observer interface {
	SessionOpened()
	SessionClosed(status string, finalFee decimal.Decimal)
}

// Service orchestrates the session state machine.
type Service struct {
	repo     RepositoryPort
	dir      Directory
	subs     SubscriptionChecker
	fees     FeeQuoter
	audit    shared.AuditRecorder
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. observer may be nil.
func NewService(repo RepositoryPort, dir Directory, subs SubscriptionChecker, quoter FeeQuoter, audit shared.AuditRecorder, observer Observer, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		subs:     subs,
		fees:     quoter,
		audit:    audit,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Enter opens a session for a card at the gate.
func (s *Service) Enter(ctx context.Context, input EntryInput) (*Session, error) {
	if input.CardID <= 0 && input.CardUID == "" {
		return nil, ErrCardRequired
	}
	var (
		card     *registry.Card
		vehicle  *registry.Vehicle
		operator *registry.Employee
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if input.CardID > 0 {
			card, err = s.dir.FindCard(gctx, input.CardID)
		} else {
			card, err = s.dir.FindCardByUID(gctx, input.CardUID)
		}
		return err
	})
	g.Go(func() error {
		var err error
		vehicle, err = s.dir.FindVehicle(gctx, input.VehicleID)
		return err
	})
	g.Go(func() error {
		var err error
		operator, err = s.dir.FindEmployee(gctx, input.OperatorID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	vehicleTypeID := input.VehicleTypeID
	if vehicleTypeID == 0 {
		vehicleTypeID = vehicle.VehicleTypeID
	}
	if _, err := s.dir.FindVehicleType(ctx, vehicleTypeID); err != nil {
		return nil, err
	}
	if !operator.Active {
		return nil, ErrOperatorInactive
	}
	now := s.now().UTC()
	if !card.Usable(now) {
		return nil, ErrCardUnusable
	}
	active, err := s.repo.FindActiveByCard(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrActiveSessionExists
	}
	stored, err := s.repo.Insert(ctx, Session{
		ID:              uuid.New(),
		CardID:          card.ID,
		VehicleID:       vehicle.ID,
		VehicleTypeID:   vehicleTypeID,
		EntryTime:       now,
		EntryOperatorID: operator.ID,
		Status:          StatusInParking,
	})
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.SessionOpened()
	}
	s.record(ctx, operator.ID, "session.enter", stored, map[string]any{
		"card_id":    stored.CardID,
		"vehicle_id": stored.VehicleID,
	})
	return stored, nil
}

// Exit closes a session as EXITED and charges the stay.
func (s *Service) Exit(ctx context.Context, input CloseInput) (*Session, error) {
	return s.close(ctx, input, EventExit)
}

// ReportLostTicket closes a session as LOST_TICKET, charged like an exit.
func (s *Service) ReportLostTicket(ctx context.Context, input CloseInput) (*Session, error) {
	return s.close(ctx, input, EventLostTicket)
}

// Cancel voids a session without charging it.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, operatorID int64) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Transition(*sess, EventCancel)
	if err != nil {
		return nil, err
	}
	if _, err := s.operator(ctx, operatorID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess.Status = next
	sess.ExitTime = &now
	sess.ExitOperatorID = &operatorID
	return s.persistClose(ctx, sess, nil)
}

// Preview quotes what closing the session now would charge, without
// changing it.
func (s *Service) Preview(ctx context.Context, id uuid.UUID) (*Charge, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(*sess, EventExit); err != nil {
		return nil, err
	}
	return s.charge(ctx, sess, s.now().UTC(), CloseInput{SessionID: id})
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.Get(ctx, id)
}

// ListActive returns the sessions currently IN_PARKING.
func (s *Service) ListActive(ctx context.Context) ([]Session, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) close(ctx context.Context, input CloseInput, event Event) (*Session, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	sess, err := s.repo.Get(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	next, err := Transition(*sess, event)
	if err != nil {
		return nil, err
	}
	if _, err := s.operator(ctx, input.OperatorID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	charge, err := s.charge(ctx, sess, now, input)
	if err != nil {
		return nil, err
	}
	operatorID := input.OperatorID
	sess.Status = next
	sess.ExitTime = &now
	sess.ExitOperatorID = &operatorID
	sess.CalculatedFee = decimal.NewNullDecimal(charge.CalculatedFee)
	sess.FinalFee = decimal.NewNullDecimal(charge.FinalFee)
	sess.DiscountReason = charge.DiscountReason
	return s.persistClose(ctx, sess, charge)
}

// charge prices the stay up to at. A covering subscription zeroes the final
// fee; a manual fee overrides everything else.
func (s *Service) charge(ctx context.Context, sess *Session, at time.Time, input CloseInput) (*Charge, error) {
	card, err := s.dir.FindCard(ctx, sess.CardID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.HasActiveSubscription(ctx, card.ID, at)
	if err != nil {
		return nil, err
	}
	quote, err := s.fees.Quote(ctx, card.CategoryID, sess.VehicleTypeID, sess.EntryTime, at)
	switch {
	case err == nil:
	case sub != nil && errors.Is(err, fees.ErrNoPricingRule):
		// exempt stays do not need a rule
		quote.Amount = decimal.Zero
		quote.RuleMissing = true
	default:
		return nil, err
	}
	c := &Charge{
		SessionID:     sess.ID,
		At:            at,
		DurationHours: quote.DurationHours,
		CalculatedFee: quote.Amount,
		FinalFee:      quote.Amount,
		RuleID:        quote.RuleID,
		RuleMissing:   quote.RuleMissing,
	}
	if sub != nil {
		id := sub.ID
		c.SubscriptionID = &id
	}
	switch {
	case input.ManualFee != nil:
		c.FinalFee = *input.ManualFee
		c.DiscountReason = input.DiscountReason
		if c.DiscountReason == ReasonNone {
			c.DiscountReason = ReasonManualOverride
		}
	case sub != nil:
		c.FinalFee = decimal.Zero
		c.DiscountReason = ReasonSubscription
	case input.DiscountReason == ReasonStaffFree:
		c.FinalFee = decimal.Zero
		c.DiscountReason = ReasonStaffFree
	}
	return c, nil
}

func (s *Service) persistClose(ctx context.Context, sess *Session, charge *Charge) (*Session, error) {
	closed, err := s.repo.Close(ctx, *sess)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, ErrInvalidTransition
	}
	final := decimal.Zero
	if sess.FinalFee.Valid {
		final = sess.FinalFee.Decimal
	}
	if s.observer != nil {
		s.observer.SessionClosed(string(sess.Status), final)
	}
	meta := map[string]any{"status": string(sess.Status)}
	if charge != nil {
		meta["calculated_fee"] = charge.CalculatedFee.String()
		meta["final_fee"] = charge.FinalFee.String()
		meta["discount_reason"] = string(charge.DiscountReason)
		meta["rule_missing"] = charge.RuleMissing
		if charge.RuleID != nil {
			meta["rule_id"] = charge.RuleID.String()
		}
	}
	s.record(ctx, *sess.ExitOperatorID, "session."+strings.ToLower(string(sess.Status)), sess, meta)
	return sess, nil
}

func (s *Service) operator(ctx context.Context, id int64) (*registry.Employee, error) {
	emp, err := s.dir.FindEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, ErrOperatorInactive
	}
	return emp, nil
}

func (s *Service) record(ctx context.Context, actor int64, action string, sess *Session, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "parking_session",
		EntityID: sess.ID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("session audit", slog.Any("error", err), slog.String("session", sess.ID.String()))
	}
}

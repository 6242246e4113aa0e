package registry

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/parkwise/internal/platform/db"
)

// Repository provides PostgreSQL backed lookups. Soft-deleted rows are
// treated as missing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindCard fetches a card by id.
func (r *Repository) FindCard(ctx context.Context, id int64) (*Card, error) {
	return r.findCard(ctx, `WHERE id = $1 AND deleted_at IS NULL`, id)
}

// FindCardByUID fetches a card by its RFID UID.
func (r *Repository) FindCardByUID(ctx context.Context, uid string) (*Card, error) {
	return r.findCard(ctx, `WHERE uid = $1 AND deleted_at IS NULL`, uid)
}

func (r *Repository) findCard(ctx context.Context, where string, arg any) (*Card, error) {
	var card Card
	var expires pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `SELECT id, uid, category_id, active, expires_at FROM cards `+where, arg).
		Scan(&card.ID, &card.UID, &card.CategoryID, &card.Active, &expires)
	if db.IsNoRows(err) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		card.ExpiresAt = &expires.Time
	}
	return &card, nil
}

// FindVehicle fetches a vehicle by id.
func (r *Repository) FindVehicle(ctx context.Context, id int64) (*Vehicle, error) {
	var v Vehicle
	err := r.pool.QueryRow(ctx, `SELECT id, plate, vehicle_type_id FROM vehicles WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&v.ID, &v.Plate, &v.VehicleTypeID)
	if db.IsNoRows(err) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVehicleType fetches a vehicle type by id.
func (r *Repository) FindVehicleType(ctx context.Context, id int64) (*VehicleType, error) {
	var vt VehicleType
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM vehicle_types WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&vt.ID, &vt.Name)
	if db.IsNoRows(err) {
		return nil, ErrVehicleTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vt, nil
}

// FindEmployee fetches an employee by id.
func (r *Repository) FindEmployee(ctx context.Context, id int64) (*Employee, error) {
	var e Employee
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM employees WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&e.ID, &e.Name, &e.Active)
	if db.IsNoRows(err) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindSubscriptionType fetches a subscription catalog entry.
func (r *Repository) FindSubscriptionType(ctx context.Context, id int64) (*SubscriptionType, error) {
	var st SubscriptionType
	err := r.pool.QueryRow(ctx, `SELECT id, name, duration_days, pricing_rule_id FROM subscription_types WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&st.ID, &st.Name, &st.DurationDays, &st.PricingRuleID)
	if db.IsNoRows(err) {
		return nil, ErrSubscriptionTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindInvoiceCard returns the invoice line a card was sold on.
func (r *Repository) FindInvoiceCard(ctx context.Context, cardID int64) (*InvoiceCard, error) {
	var ic InvoiceCard
	err := r.pool.QueryRow(ctx, `SELECT invoice_id, card_id, price FROM invoice_cards WHERE card_id = $1 ORDER BY invoice_id DESC LIMIT 1`, cardID).
		Scan(&ic.InvoiceID, &ic.CardID, &ic.Price)
	if db.IsNoRows(err) {
		return nil, ErrInvoiceCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ic, nil
}

package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/parkwise/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const subscriptionColumns = `id, card_id, vehicle_id, vehicle_type_id, subscription_type_id, price_paid, start_date, end_date, suspended, created_at`

// Insert stores a subscription.
func (r *Repository) Insert(ctx context.Context, sub Subscription) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+subscriptionColumns,
		sub.ID, sub.CardID, sub.VehicleID, sub.VehicleTypeID, sub.SubscriptionTypeID,
		sub.PricePaid, sub.StartDate, sub.EndDate, sub.Suspended, sub.CreatedAt)
	return scanSubscription(row)
}

// Get fetches a subscription by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// FindCovering returns the covering subscription with the furthest end date.
func (r *Repository) FindCovering(ctx context.Context, cardID int64, at time.Time) (*Subscription, error) {
	sub, err := scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
WHERE card_id = $1 AND NOT suspended AND start_date <= $2 AND end_date >= $2
ORDER BY end_date DESC LIMIT 1`, cardID, at))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return sub, err
}

// ListByCard lists a card's subscriptions, newest first.
func (r *Repository) ListByCard(ctx context.Context, cardID int64) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE card_id = $1 ORDER BY start_date DESC`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// SetSuspended updates the flag when it differs from the stored value.
func (r *Repository) SetSuspended(ctx context.Context, id uuid.UUID, suspended bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE subscriptions SET suspended = $2 WHERE id = $1 AND suspended <> $2`, id, suspended)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.CardID, &sub.VehicleID, &sub.VehicleTypeID, &sub.SubscriptionTypeID,
		&sub.PricePaid, &sub.StartDate, &sub.EndDate, &sub.Suspended, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

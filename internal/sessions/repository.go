package sessions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/parkwise/internal/platform/db"
	"github.com/parkwise/parkwise/internal/shared"
)

// activeCardIndex is the partial unique index allowing one IN_PARKING
// session per card.
const activeCardIndex = "parking_sessions_active_card_uidx"

const sessionColumns = `id, card_id, vehicle_id, vehicle_type_id, entry_time, entry_operator_id,
exit_time, exit_operator_id, status, calculated_fee, final_fee, COALESCE(discount_reason, '')`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new session.
func (r *Repository) Insert(ctx context.Context, s Session) (*Session, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO parking_sessions
(id, card_id, vehicle_id, vehicle_type_id, entry_time, entry_operator_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+sessionColumns,
		s.ID, s.CardID, s.VehicleID, s.VehicleTypeID, s.EntryTime, s.EntryOperatorID, string(s.Status))
	stored, err := scanSession(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			if db.ConstraintName(err) == activeCardIndex {
				return nil, ErrActiveSessionExists
			}
			return nil, fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return nil, err
	}
	return stored, nil
}

// Get fetches a session by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM parking_sessions WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// FindActiveByCard returns the card's open session, if any.
func (r *Repository) FindActiveByCard(ctx context.Context, cardID int64) (*Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM parking_sessions WHERE card_id = $1 AND status = 'IN_PARKING'`, cardID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return s, err
}

// ListActive lists open sessions, oldest entry first.
func (r *Repository) ListActive(ctx context.Context) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM parking_sessions WHERE status = 'IN_PARKING' ORDER BY entry_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Close writes the exit fields while the row is still IN_PARKING.
func (r *Repository) Close(ctx context.Context, s Session) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE parking_sessions
SET status = $2, exit_time = $3, exit_operator_id = $4, calculated_fee = $5, final_fee = $6,
    discount_reason = NULLIF($7, '')
WHERE id = $1 AND status = 'IN_PARKING'`,
		s.ID, string(s.Status), s.ExitTime, s.ExitOperatorID, s.CalculatedFee, s.FinalFee, string(s.DiscountReason))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s      Session
		status string
		reason string
	)
	if err := row.Scan(&s.ID, &s.CardID, &s.VehicleID, &s.VehicleTypeID, &s.EntryTime, &s.EntryOperatorID,
		&s.ExitTime, &s.ExitOperatorID, &status, &s.CalculatedFee, &s.FinalFee, &reason); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.DiscountReason = DiscountReason(reason)
	return &s, nil
}

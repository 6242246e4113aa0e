package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/parkwise/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for price records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, lineage, dim_primary, dim_secondary, price, day_price, first_hour_price,
	additional_hour_price, effective_from, changed_by, COALESCE(reason, ''), created_at`

// Insert stores a new record.
func (r *Repository) Insert(ctx context.Context, rec Record) (*Record, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO pricing_records (
			id, lineage, dim_primary, dim_secondary, price, day_price, first_hour_price,
			additional_hour_price, effective_from, changed_by, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`,
		rec.ID, string(rec.Key.Lineage), rec.Key.Primary, rec.Key.Secondary,
		rec.Price, rec.DayPrice, rec.FirstHourPrice, rec.AdditionalHourPrice,
		rec.EffectiveFrom, rec.ChangedBy, rec.Reason, rec.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateEffective
		}
		return nil, err
	}
	out := rec
	return &out, nil
}

// Latest returns the newest record effective before (or at) the given time.
func (r *Repository) Latest(ctx context.Context, key DimensionKey, at time.Time, inclusive bool) (*Record, error) {
	cmp := "<"
	if inclusive {
		cmp = "<="
	}
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM pricing_records
		WHERE lineage = $1 AND dim_primary = $2 AND dim_secondary = $3 AND effective_from `+cmp+` $4
		ORDER BY effective_from DESC
		LIMIT 1`, string(key.Lineage), key.Primary, key.Secondary, at)
	rec, err := scanRecord(row)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByKey returns the lineage of key ordered by effective time.
func (r *Repository) ListByKey(ctx context.Context, key DimensionKey) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM pricing_records
		WHERE lineage = $1 AND dim_primary = $2 AND dim_secondary = $3
		ORDER BY effective_from`, string(key.Lineage), key.Primary, key.Secondary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Get fetches a record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM pricing_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if db.IsNoRows(err) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CountReferencing counts records whose predecessor is id. Only the
// immediate successor can reference a record, so the result is 0 or 1.
func (r *Repository) CountReferencing(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM (
			SELECT 1 FROM pricing_records s
			JOIN pricing_records t ON t.lineage = s.lineage
				AND t.dim_primary = s.dim_primary
				AND t.dim_secondary = s.dim_secondary
			WHERE t.id = $1 AND s.effective_from > t.effective_from
			LIMIT 1
		) refs`, id).Scan(&count)
	return count, err
}

// DeleteIfHead removes the record unless a later record exists for its key.
func (r *Repository) DeleteIfHead(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pricing_records t
		WHERE t.id = $1 AND NOT EXISTS (
			SELECT 1 FROM pricing_records s
			WHERE s.lineage = t.lineage
				AND s.dim_primary = t.dim_primary
				AND s.dim_secondary = t.dim_secondary
				AND s.effective_from > t.effective_from
		)`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var lineage string
	err := row.Scan(
		&rec.ID, &lineage, &rec.Key.Primary, &rec.Key.Secondary,
		&rec.Price, &rec.DayPrice, &rec.FirstHourPrice, &rec.AdditionalHourPrice,
		&rec.EffectiveFrom, &rec.ChangedBy, &rec.Reason, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Key.Lineage = Lineage(lineage)
	return &rec, nil
}

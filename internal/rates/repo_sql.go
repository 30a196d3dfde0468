package rates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLStore is the Postgres-backed rate store.
//
// It assumes:
// CREATE UNIQUE INDEX call_rates_one_active_per_pair
//   ON call_rates (from_country_code, to_country_code) WHERE NOT is_deleted;
type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, clock: time.Now}
}

const rateColumns = `id, from_country_code, to_country_code, from_country_name, to_country_name,
       duration, duration_unit, price, tax, currency,
       is_deleted, deleted_at, created_by, updated_by, deleted_by, created_at, updated_at`

func scanRate(row interface{ Scan(...any) error }) (CallRate, error) {
	var r CallRate
	err := row.Scan(
		&r.ID,
		&r.FromCountryCode,
		&r.ToCountryCode,
		&r.FromCountryName,
		&r.ToCountryName,
		&r.Duration,
		&r.DurationUnit,
		&r.Price,
		&r.Tax,
		&r.Currency,
		&r.IsDeleted,
		&r.DeletedAt,
		&r.CreatedBy,
		&r.UpdatedBy,
		&r.DeletedBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (s *SQLStore) Upsert(ctx context.Context, params UpsertParams) (CallRate, error) {
	// Match-or-insert on the active pair; the partial unique index makes
	// this atomic under concurrent admin writes.
	const q = `
INSERT INTO call_rates (
  id, from_country_code, to_country_code, from_country_name, to_country_name,
  duration, duration_unit, price, tax, currency,
  is_deleted, created_by, created_at, updated_at
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12, $12
)
ON CONFLICT (from_country_code, to_country_code) WHERE NOT is_deleted
DO UPDATE SET from_country_name = EXCLUDED.from_country_name,
              to_country_name   = EXCLUDED.to_country_name,
              duration          = EXCLUDED.duration,
              duration_unit     = EXCLUDED.duration_unit,
              price             = EXCLUDED.price,
              tax               = EXCLUDED.tax,
              currency          = EXCLUDED.currency,
              updated_by        = EXCLUDED.created_by,
              updated_at        = EXCLUDED.updated_at
RETURNING ` + rateColumns + `
`
	now := s.clock().UTC()
	r, err := scanRate(s.db.QueryRowContext(ctx, q,
		uuid.NewString(),
		params.FromCountryCode,
		params.ToCountryCode,
		params.FromCountryName,
		params.ToCountryName,
		params.Detail.Duration,
		params.Detail.DurationUnit,
		params.Detail.Price,
		params.Detail.Tax,
		params.Detail.Currency,
		params.AdminID,
		now,
	))
	if err != nil {
		return CallRate{}, err
	}
	return r, nil
}

func (s *SQLStore) FindActive(ctx context.Context, fromCountryCode, toCountryCode string) (CallRate, bool, error) {
	const q = `
SELECT ` + rateColumns + `
FROM call_rates
WHERE from_country_code = $1 AND to_country_code = $2 AND NOT is_deleted
`
	r, err := scanRate(s.db.QueryRowContext(ctx, q, fromCountryCode, toCountryCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRate{}, false, nil
		}
		return CallRate{}, false, err
	}
	return r, true, nil
}

// GetByID returns the rate even when soft-deleted: settled calls keep
// referencing deleted rows.
func (s *SQLStore) GetByID(ctx context.Context, id string) (CallRate, error) {
	const q = `
SELECT ` + rateColumns + `
FROM call_rates
WHERE id = $1
`
	r, err := scanRate(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRate{}, ErrNotFound
		}
		return CallRate{}, err
	}
	return r, nil
}

func (s *SQLStore) List(ctx context.Context, filter ListFilter, offset, limit int) ([]CallRate, int, error) {
	where := []string{"NOT is_deleted"}
	args := []any{}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("from_country_code", filter.FromCountryCode)
	add("to_country_code", filter.ToCountryCode)
	add("from_country_name", filter.FromCountryName)
	add("to_country_name", filter.ToCountryName)

	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_rates WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, offset, limit)
	q := `SELECT ` + rateColumns + ` FROM call_rates WHERE ` + cond +
		fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []CallRate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *SQLStore) SoftDelete(ctx context.Context, id, deletedBy string, now time.Time) (CallRate, error) {
	const q = `
UPDATE call_rates
SET is_deleted = TRUE,
    deleted_at = $2,
    deleted_by = $3,
    updated_at = $2
WHERE id = $1 AND NOT is_deleted
RETURNING ` + rateColumns + `
`
	r, err := scanRate(s.db.QueryRowContext(ctx, q, id, now, deletedBy))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRate{}, ErrNotFound
		}
		return CallRate{}, err
	}
	return r, nil
}

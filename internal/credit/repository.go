package credit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calling-platform/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NOTE: This repository assumes the credits table with a partial unique
// index enforcing one active ledger per user:
// CREATE UNIQUE INDEX credits_one_active_per_user
//   ON credits (used_by) WHERE NOT is_deleted;

const creditColumns = `id, used_by, total_amount, remaining_amount, currency, is_deleted, deleted_at, created_at, updated_at`

func scanCredit(row interface{ Scan(...any) error }) (Credit, error) {
	var c Credit
	err := row.Scan(
		&c.ID,
		&c.UsedBy,
		&c.TotalAmount,
		&c.RemainingAmount,
		&c.Currency,
		&c.IsDeleted,
		&c.DeletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func getByUser(ctx context.Context, db *sql.DB, userID string) (Credit, error) {
	const q = `
SELECT ` + creditColumns + `
FROM credits
WHERE used_by = $1 AND NOT is_deleted
`
	c, err := scanCredit(db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credit{}, ErrNotFound
		}
		return Credit{}, err
	}
	return c, nil
}

func getByID(ctx context.Context, db *sql.DB, creditID string) (Credit, error) {
	const q = `
SELECT ` + creditColumns + `
FROM credits
WHERE id = $1 AND NOT is_deleted
`
	c, err := scanCredit(db.QueryRowContext(ctx, q, creditID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credit{}, ErrNotFound
		}
		return Credit{}, err
	}
	return c, nil
}

func upsertTopUp(ctx context.Context, db *sql.DB, userID string, amount decimal.Decimal, currency pricing.Currency, now time.Time) (Credit, error) {
	const q = `
INSERT INTO credits (id, used_by, total_amount, remaining_amount, currency, is_deleted, created_at, updated_at)
VALUES ($1, $2, $3, $3, $4, FALSE, $5, $5)
ON CONFLICT (used_by) WHERE NOT is_deleted
DO UPDATE SET total_amount     = credits.total_amount + EXCLUDED.total_amount,
              remaining_amount = credits.remaining_amount + EXCLUDED.remaining_amount,
              updated_at       = EXCLUDED.updated_at
RETURNING ` + creditColumns + `
`
	c, err := scanCredit(db.QueryRowContext(ctx, q, uuid.NewString(), userID, amount, currency, now))
	if err != nil {
		return Credit{}, err
	}
	return c, nil
}

// conditionalDebit is the sole write path for usage charges. The WHERE
// clause is the balance guard; zero rows affected means the guard
// failed (or the row is gone) and nothing was written.
func conditionalDebit(ctx context.Context, db *sql.DB, creditID string, amount decimal.Decimal, now time.Time) (Credit, bool, error) {
	const q = `
UPDATE credits
SET remaining_amount = remaining_amount - $2,
    updated_at       = $3
WHERE id = $1 AND NOT is_deleted AND remaining_amount >= $2
RETURNING ` + creditColumns + `
`
	c, err := scanCredit(db.QueryRowContext(ctx, q, creditID, amount, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credit{}, false, nil
		}
		return Credit{}, false, err
	}
	return c, true, nil
}

// DebitTx is the transaction-scoped variant of the conditional debit,
// used by call settlement so the settled transition and the ledger
// effect commit together. Returns false when the balance guard fails;
// that is not an error and must not abort the surrounding transaction.
func DebitTx(ctx context.Context, tx *sql.Tx, creditID string, amount decimal.Decimal, now time.Time) (bool, error) {
	const q = `
UPDATE credits
SET remaining_amount = remaining_amount - $2,
    updated_at       = $3
WHERE id = $1 AND NOT is_deleted AND remaining_amount >= $2
`
	res, err := tx.ExecContext(ctx, q, creditID, amount, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func listByUser(ctx context.Context, db *sql.DB, userID string, offset, limit int) ([]Credit, int, error) {
	const countQ = `SELECT COUNT(*) FROM credits WHERE used_by = $1 AND NOT is_deleted`
	var total int
	if err := db.QueryRowContext(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `
SELECT ` + creditColumns + `
FROM credits
WHERE used_by = $1 AND NOT is_deleted
ORDER BY created_at DESC
OFFSET $2 LIMIT $3
`
	rows, err := db.QueryContext(ctx, q, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"calling-platform/internal/credit"
	"calling-platform/internal/pricing"
	"calling-platform/pkg/utils"
)

// Store abstracts call session persistence.
type Store interface {
	// FindOrCreatePending returns the open pending row for the pair or
	// inserts one with the given dial-time snapshots. Snapshot fields
	// are written only on insert; a concurrent duplicate dial observes
	// the first row. The bool reports whether a row was created.
	FindOrCreatePending(ctx context.Context, params PendingParams) (Call, bool, error)

	// SetSID records the provider call id after a successful originate.
	SetSID(ctx context.Context, id, sid string) (Call, error)

	// UpdateProgress advances a non-terminal session: status, sid and
	// optionally startedAt. Price and credit fields are untouched.
	UpdateProgress(ctx context.Context, id string, params ProgressParams) (Call, error)

	// Settle finalizes the session and applies the ledger debit in one
	// transaction. A row already settled reports AlreadySettled and is
	// left unchanged; that is the idempotency guarantee under provider
	// redelivery.
	Settle(ctx context.Context, id string, params SettleParams) (SettleResult, error)

	// MarkFailed closes a session that never connected.
	MarkFailed(ctx context.Context, id string) error

	// ExpirePending marks pending rows created before cutoff as failed
	// and returns how many were swept.
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)

	GetByID(ctx context.Context, id string) (Call, error)
	FindBySID(ctx context.Context, sid string) (Call, bool, error)
	FindPendingByNumbers(ctx context.Context, callerNumber, receiverNumber string) (Call, bool, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]Call, int, error)
}

type PendingParams struct {
	CallerID   string
	ReceiverID string

	CallerDetail   ContactSnapshot
	ReceiverDetail ContactSnapshot

	CallRateID     *string
	CallRateDetail *pricing.CallRateDetail
	ProviderRate   pricing.ProviderRate

	CreditUsedID string
}

type ProgressParams struct {
	SID       string
	Status    CallStatus
	StartedAt *time.Time
}

type SettleParams struct {
	SID       string
	Status    CallStatus
	StartedAt *time.Time
	EndedAt   *time.Time

	ProviderTotalPrice decimal.Decimal
	CreditAmountUsed   decimal.Decimal
}

type SettleResult struct {
	Call Call

	// AlreadySettled means a previous delivery won the claim; nothing
	// was written this time.
	AlreadySettled bool

	// DebitApplied is false when the ledger guard rejected the debit
	// (or the settle amount was zero).
	DebitApplied bool
}

// ListFilter narrows the call history read path. UserID scopes rows to
// sessions the user participated in and hides the side they deleted.
type ListFilter struct {
	UserID string
	Status CallStatus
	SID    string

	// CreatedFrom/CreatedTo bound created_at when non-zero.
	CreatedFrom time.Time
	CreatedTo   time.Time
}

const callColumns = `id, caller_id, receiver_id, caller_detail, receiver_detail, status, sid,
	started_at, ended_at, call_rate_id, call_rate_detail, provider_rate, provider_total_price,
	credit_used_id, credit_amount_used, debit_skipped, settled_at,
	is_deleted_by_caller, is_deleted_by_receiver, created_at, updated_at`

type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, clock: time.Now}
}

type rowScanner interface{ Scan(dest ...any) error }

func scanCall(row rowScanner) (Call, error) {
	var (
		c                        Call
		callerJSON, receiverJSON []byte
		rateDetailJSON           []byte
		providerRateJSON         []byte
	)
	err := row.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &callerJSON, &receiverJSON,
		&c.Status, &c.SID, &c.StartedAt, &c.EndedAt, &c.CallRateID, &rateDetailJSON,
		&providerRateJSON, &c.ProviderTotalPrice, &c.CreditUsedID, &c.CreditAmountUsed,
		&c.DebitSkipped, &c.SettledAt, &c.IsDeletedByCaller, &c.IsDeletedByReceiver,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Call{}, err
	}
	if err := json.Unmarshal(callerJSON, &c.CallerDetail); err != nil {
		return Call{}, fmt.Errorf("decoding caller snapshot: %w", err)
	}
	if err := json.Unmarshal(receiverJSON, &c.ReceiverDetail); err != nil {
		return Call{}, fmt.Errorf("decoding receiver snapshot: %w", err)
	}
	if len(rateDetailJSON) > 0 {
		c.CallRateDetail = &pricing.CallRateDetail{}
		if err := json.Unmarshal(rateDetailJSON, c.CallRateDetail); err != nil {
			return Call{}, fmt.Errorf("decoding rate snapshot: %w", err)
		}
	}
	if err := json.Unmarshal(providerRateJSON, &c.ProviderRate); err != nil {
		return Call{}, fmt.Errorf("decoding provider rate snapshot: %w", err)
	}
	return c, nil
}

func (s *SQLStore) FindOrCreatePending(ctx context.Context, params PendingParams) (Call, bool, error) {
	callerJSON, err := json.Marshal(params.CallerDetail)
	if err != nil {
		return Call{}, false, fmt.Errorf("encoding caller snapshot: %w", err)
	}
	receiverJSON, err := json.Marshal(params.ReceiverDetail)
	if err != nil {
		return Call{}, false, fmt.Errorf("encoding receiver snapshot: %w", err)
	}
	var rateDetailJSON []byte
	if params.CallRateDetail != nil {
		rateDetailJSON, err = json.Marshal(params.CallRateDetail)
		if err != nil {
			return Call{}, false, fmt.Errorf("encoding rate snapshot: %w", err)
		}
	}
	providerRateJSON, err := json.Marshal(params.ProviderRate)
	if err != nil {
		return Call{}, false, fmt.Errorf("encoding provider rate snapshot: %w", err)
	}

	now := s.clock().UTC()

	// The partial unique index on (caller_id, receiver_id) for open
	// pending rows makes this race-safe: the loser of a concurrent
	// insert hits DO NOTHING and reads the winner's row.
	insert := `
		INSERT INTO calls (id, caller_id, receiver_id, caller_detail, receiver_detail, status, sid,
			call_rate_id, call_rate_detail, provider_rate, provider_total_price,
			credit_used_id, credit_amount_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, $9, 0, $10, 0, $11, $11)
		ON CONFLICT (caller_id, receiver_id) WHERE status = 'PENDING' AND sid = '' AND NOT is_deleted_by_caller AND NOT is_deleted_by_receiver
		DO NOTHING
		RETURNING ` + callColumns

	c, err := scanCall(s.db.QueryRowContext(ctx, insert,
		uuid.NewString(), params.CallerID, params.ReceiverID, callerJSON, receiverJSON,
		StatusPending, params.CallRateID, rateDetailJSON, providerRateJSON,
		params.CreditUsedID, now))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, fmt.Errorf("inserting pending call: %w", err)
	}

	query := `SELECT ` + callColumns + ` FROM calls
		WHERE caller_id = $1 AND receiver_id = $2 AND status = $3 AND sid = ''
		AND NOT is_deleted_by_caller AND NOT is_deleted_by_receiver`
	c, err = scanCall(s.db.QueryRowContext(ctx, query, params.CallerID, params.ReceiverID, StatusPending))
	if err != nil {
		return Call{}, false, fmt.Errorf("loading pending call after conflict: %w", err)
	}
	return c, false, nil
}

func (s *SQLStore) SetSID(ctx context.Context, id, sid string) (Call, error) {
	query := `UPDATE calls SET sid = $2, updated_at = $3 WHERE id = $1 AND settled_at IS NULL RETURNING ` + callColumns
	c, err := scanCall(s.db.QueryRowContext(ctx, query, id, sid, s.clock().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("recording call sid: %w", err)
	}
	return c, nil
}

func (s *SQLStore) UpdateProgress(ctx context.Context, id string, params ProgressParams) (Call, error) {
	query := `UPDATE calls
		SET status = $2, sid = $3, started_at = COALESCE($4, started_at), updated_at = $5
		WHERE id = $1 AND settled_at IS NULL
		RETURNING ` + callColumns
	c, err := scanCall(s.db.QueryRowContext(ctx, query, id, params.Status, params.SID, params.StartedAt, s.clock().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("updating call progress: %w", err)
	}
	return c, nil
}

func (s *SQLStore) Settle(ctx context.Context, id string, params SettleParams) (SettleResult, error) {
	var result SettleResult
	now := s.clock().UTC()

	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var settledAt *time.Time
		var creditUsedID string
		lock := `SELECT settled_at, credit_used_id FROM calls WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lock, id).Scan(&settledAt, &creditUsedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("locking call for settlement: %w", err)
		}
		if settledAt != nil {
			result.AlreadySettled = true
			return nil
		}

		debitApplied := false
		debitSkipped := false
		if params.CreditAmountUsed.IsPositive() && creditUsedID != "" {
			ok, err := credit.DebitTx(ctx, tx, creditUsedID, params.CreditAmountUsed, now)
			if err != nil {
				return fmt.Errorf("debiting credit at settlement: %w", err)
			}
			debitApplied = ok
			debitSkipped = !ok
		}

		update := `UPDATE calls
			SET status = $2, sid = $3, started_at = $4, ended_at = $5,
				provider_total_price = $6, credit_amount_used = $7,
				debit_skipped = $8, settled_at = $9, updated_at = $9
			WHERE id = $1
			RETURNING ` + callColumns
		c, err := scanCall(tx.QueryRowContext(ctx, update, id, params.Status, params.SID,
			params.StartedAt, params.EndedAt, params.ProviderTotalPrice,
			params.CreditAmountUsed, debitSkipped, now))
		if err != nil {
			return fmt.Errorf("writing settlement: %w", err)
		}
		result.Call = c
		result.DebitApplied = debitApplied
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}
	return result, nil
}

func (s *SQLStore) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE calls SET status = $2, updated_at = $3 WHERE id = $1 AND settled_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, id, StatusFailed, s.clock().UTC()); err != nil {
		return fmt.Errorf("marking call failed: %w", err)
	}
	return nil
}

func (s *SQLStore) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE calls SET status = $1, updated_at = $2
		WHERE status = $3 AND sid = '' AND created_at < $4`
	res, err := s.db.ExecContext(ctx, query, StatusFailed, s.clock().UTC(), StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expiring pending calls: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("getting call: %w", err)
	}
	return c, nil
}

func (s *SQLStore) FindBySID(ctx context.Context, sid string) (Call, bool, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE sid = $1 ORDER BY created_at DESC LIMIT 1`
	c, err := scanCall(s.db.QueryRowContext(ctx, query, sid))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, fmt.Errorf("finding call by sid: %w", err)
	}
	return c, true, nil
}

func (s *SQLStore) FindPendingByNumbers(ctx context.Context, callerNumber, receiverNumber string) (Call, bool, error) {
	query := `SELECT ` + callColumns + ` FROM calls
		WHERE status = $1 AND sid = ''
		AND caller_detail->>'phone_number' = $2 AND receiver_detail->>'phone_number' = $3
		AND NOT is_deleted_by_caller AND NOT is_deleted_by_receiver
		ORDER BY created_at DESC LIMIT 1`
	c, err := scanCall(s.db.QueryRowContext(ctx, query, StatusPending, callerNumber, receiverNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, fmt.Errorf("finding pending call by numbers: %w", err)
	}
	return c, true, nil
}

func (s *SQLStore) List(ctx context.Context, filter ListFilter, offset, limit int) ([]Call, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.UserID != "" {
		where += fmt.Sprintf(` AND ((caller_id = $%d AND NOT is_deleted_by_caller) OR (receiver_id = $%d AND NOT is_deleted_by_receiver))`, idx, idx)
		args = append(args, filter.UserID)
		idx++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.SID != "" {
		where += fmt.Sprintf(` AND sid = $%d`, idx)
		args = append(args, filter.SID)
		idx++
	}
	if !filter.CreatedFrom.IsZero() {
		where += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, filter.CreatedFrom)
		idx++
	}
	if !filter.CreatedTo.IsZero() {
		where += fmt.Sprintf(` AND created_at <= $%d`, idx)
		args = append(args, filter.CreatedTo)
		idx++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	query := `SELECT ` + callColumns + ` FROM calls` + where +
		fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, idx, idx+1)
	args = append(args, offset, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning call: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

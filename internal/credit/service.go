package credit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calling-platform/internal/pricing"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("credit: not found")
	ErrInsufficientFunds = errors.New("credit: insufficient funds")
	ErrInvalidArgument   = errors.New("credit: invalid argument")
)

// Service provides credit ledger operations.
//
// Money invariants:
// - Debit is a single conditional UPDATE guarded by the current
//   remaining balance; there is no read-modify-write from application
//   code.
// - There is no rollback/compensation: once debited, a settlement is
//   final. Disputes require a manual compensating top-up.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

// GetBalance returns the user's active ledger row, or ErrNotFound when
// the user has never topped up.
func (s *Service) GetBalance(ctx context.Context, userID string) (Credit, error) {
	if userID == "" {
		return Credit{}, ErrInvalidArgument
	}
	return getByUser(ctx, s.db, userID)
}

// GetByID loads a ledger row by id, active rows only.
func (s *Service) GetByID(ctx context.Context, creditID string) (Credit, error) {
	if creditID == "" {
		return Credit{}, ErrInvalidArgument
	}
	return getByID(ctx, s.db, creditID)
}

// TopUp adds credit to the user's ledger, creating it on first use.
// Both TotalAmount and RemainingAmount are incremented, so the
// remaining balance stays an accurate "what is left" figure.
func (s *Service) TopUp(ctx context.Context, userID string, amount decimal.Decimal, currency pricing.Currency) (Credit, error) {
	if userID == "" || currency == "" {
		return Credit{}, ErrInvalidArgument
	}
	if !amount.IsPositive() {
		return Credit{}, ErrInvalidArgument
	}
	return upsertTopUp(ctx, s.db, userID, amount, currency, s.clock().UTC())
}

// Debit decrements RemainingAmount by amount, only if the balance
// covers it. A zero amount is a no-op. The guard and the decrement are
// one atomic statement; under concurrent settlements at most the
// covered amounts succeed.
func (s *Service) Debit(ctx context.Context, creditID string, amount decimal.Decimal) (Credit, error) {
	if creditID == "" {
		return Credit{}, ErrInvalidArgument
	}
	if amount.IsNegative() {
		return Credit{}, ErrInvalidArgument
	}
	if amount.IsZero() {
		return getByID(ctx, s.db, creditID)
	}

	c, ok, err := conditionalDebit(ctx, s.db, creditID, amount, s.clock().UTC())
	if err != nil {
		return Credit{}, err
	}
	if !ok {
		// Distinguish "row missing" from "guard failed".
		if _, err := getByID(ctx, s.db, creditID); err != nil {
			return Credit{}, err
		}
		return Credit{}, ErrInsufficientFunds
	}
	return c, nil
}

// List returns the user's ledger rows, newest first.
func (s *Service) List(ctx context.Context, userID string, pageIndex, pageSize int) ([]Credit, int, error) {
	if userID == "" {
		return nil, 0, ErrInvalidArgument
	}
	if pageIndex < 1 {
		pageIndex = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return listByUser(ctx, s.db, userID, (pageIndex-1)*pageSize, pageSize)
}

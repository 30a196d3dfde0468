package credit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"calling-platform/internal/pricing"

	"github.com/shopspring/decimal"
)

// The money operations are implemented with Postgres-specific SQL
// (conditional UPDATE, partial-index upsert), so end-to-end behavior is
// covered by integration tests against Postgres. Request validation and
// the Debit error taxonomy are unit-tested here; the latter runs on a
// scripted driver.Connector so the zero-rows paths can be exercised
// without a database.

func TestTopUp_RejectsInvalidArgs(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	_, err := svc.TopUp(context.Background(), "", decimal.NewFromInt(10), pricing.CurrencyUSD)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = svc.TopUp(context.Background(), "u1", decimal.Zero, pricing.CurrencyUSD)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = svc.TopUp(context.Background(), "u1", decimal.NewFromInt(-5), pricing.CurrencyUSD)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = svc.TopUp(context.Background(), "u1", decimal.NewFromInt(10), "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDebit_RejectsInvalidArgs(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	_, err := svc.Debit(context.Background(), "", decimal.NewFromInt(1))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = svc.Debit(context.Background(), "c1", decimal.NewFromInt(-1))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

// scriptedDB builds a *sql.DB whose every query is answered by fn.
type queryFunc func(query string, args []driver.NamedValue) (driver.Rows, error)

func scriptedDB(fn queryFunc) *sql.DB {
	return sql.OpenDB(scriptedConnector{fn: fn})
}

type scriptedConnector struct{ fn queryFunc }

func (c scriptedConnector) Connect(context.Context) (driver.Conn, error) {
	return scriptedConn{fn: c.fn}, nil
}
func (c scriptedConnector) Driver() driver.Driver { return scriptedDriver{} }

type scriptedDriver struct{}

func (scriptedDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open by dsn not supported")
}

type scriptedConn struct{ fn queryFunc }

func (c scriptedConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c scriptedConn) Close() error              { return nil }
func (c scriptedConn) Begin() (driver.Tx, error) { return nil, errors.New("begin not supported") }

func (c scriptedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.fn(query, args)
}

// creditRows serves at most one credits row in column order.
type creditRows struct {
	vals []driver.Value
	done bool
}

func noRows() *creditRows { return &creditRows{done: true} }

func oneCreditRow(id string, remaining string) *creditRows {
	now := time.Now().UTC()
	return &creditRows{vals: []driver.Value{
		id, "user-1", "100", remaining, "USD", false, nil, now, now,
	}}
}

func (r *creditRows) Columns() []string {
	return strings.Split(creditColumns, ", ")
}
func (r *creditRows) Close() error { return nil }
func (r *creditRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	copy(dest, r.vals)
	r.done = true
	return nil
}

func TestDebit_GuardFailureVsMissingRow(t *testing.T) {
	t.Run("guard failed on an existing row", func(t *testing.T) {
		db := scriptedDB(func(query string, args []driver.NamedValue) (driver.Rows, error) {
			if strings.HasPrefix(strings.TrimSpace(query), "UPDATE") {
				// Balance guard rejected the decrement: zero rows back.
				return noRows(), nil
			}
			return oneCreditRow("credit-1", "3"), nil
		})
		defer db.Close()

		svc := NewService(db)
		if _, err := svc.Debit(context.Background(), "credit-1", decimal.NewFromInt(5)); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("row missing entirely", func(t *testing.T) {
		db := scriptedDB(func(query string, args []driver.NamedValue) (driver.Rows, error) {
			return noRows(), nil
		})
		defer db.Close()

		svc := NewService(db)
		if _, err := svc.Debit(context.Background(), "credit-gone", decimal.NewFromInt(5)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("covered debit returns the updated row", func(t *testing.T) {
		db := scriptedDB(func(query string, args []driver.NamedValue) (driver.Rows, error) {
			return oneCreditRow("credit-1", "95"), nil
		})
		defer db.Close()

		svc := NewService(db)
		c, err := svc.Debit(context.Background(), "credit-1", decimal.NewFromInt(5))
		if err != nil {
			t.Fatalf("debit: %v", err)
		}
		if !c.RemainingAmount.Equal(decimal.NewFromInt(95)) {
			t.Fatalf("remaining = %s, want 95", c.RemainingAmount)
		}
	})
}

func TestGetBalance_RejectsEmptyUser(t *testing.T) {
	svc := NewService((*sql.DB)(nil))
	if _, err := svc.GetBalance(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

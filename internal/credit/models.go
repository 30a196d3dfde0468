package credit

import (
	"time"

	"calling-platform/internal/pricing"

	"github.com/shopspring/decimal"
)

// Credit is a user's prepaid balance.
//
// Money invariants:
// - Top-ups increment TotalAmount and RemainingAmount together.
// - Usage only decrements RemainingAmount, and only through the
//   conditional debit; RemainingAmount never goes below zero.
// - Exactly one active (non-deleted) row per user, enforced by a
//   partial unique index on used_by.
type Credit struct {
	ID     string `json:"id" db:"id"`
	UsedBy string `json:"used_by" db:"used_by"`

	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`

	Currency pricing.Currency `json:"currency" db:"currency"`

	IsDeleted bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

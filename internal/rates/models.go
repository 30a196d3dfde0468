package rates

import (
	"time"

	"calling-platform/internal/pricing"
)

// CallRate is the admin-managed price for calls between two countries.
//
// Invariants:
// - At most one active (non-deleted) rate per (from, to) country-code
//   pair, enforced by upsert-on-match semantics over a partial unique
//   index.
// - Rows are soft-deleted, never physically removed: historical calls
//   reference them.
type CallRate struct {
	ID string `json:"id" db:"id"`

	FromCountryCode string `json:"from_country_code" db:"from_country_code"`
	ToCountryCode   string `json:"to_country_code" db:"to_country_code"`
	FromCountryName string `json:"from_country_name" db:"from_country_name"`
	ToCountryName   string `json:"to_country_name" db:"to_country_name"`

	pricing.CallRateDetail

	IsDeleted bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	CreatedBy string  `json:"created_by" db:"created_by"`
	UpdatedBy *string `json:"updated_by,omitempty" db:"updated_by"`
	DeletedBy *string `json:"deleted_by,omitempty" db:"deleted_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Detail returns the immutable price specification snapshot for this
// rate; the copy is what gets stored on a call record.
func (r CallRate) Detail() pricing.CallRateDetail {
	return r.CallRateDetail
}

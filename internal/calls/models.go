package calls

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"calling-platform/internal/pricing"
)

var (
	ErrNotFound               = errors.New("calls: not found")
	ErrInvalidArgument        = errors.New("calls: invalid argument")
	ErrNoVerifiedCallerNumber = errors.New("calls: caller has no verified number")
	ErrDestinationNotVerified = errors.New("calls: destination number is not verified")
	ErrInsufficientBalance    = errors.New("calls: insufficient balance")
	ErrDialInProgress         = errors.New("calls: a dial between these parties is already in progress")
	ErrCallerCannotDialSelf   = errors.New("calls: caller and destination are the same number")
)

// CallStatus is the internal lifecycle state of a call session.
type CallStatus string

const (
	// StatusPending marks a dial request whose provider callback has
	// not been observed yet. Pending rows have an empty SID.
	StatusPending CallStatus = "PENDING"

	// StatusInProgress marks a session matched to at least one provider
	// event that is not yet terminal.
	StatusInProgress CallStatus = "IN_PROGRESS"

	// StatusSettled marks a terminal session: EndedAt, ProviderTotalPrice
	// and CreditAmountUsed are all set and the ledger debit (if any) has
	// been applied. Settled rows never change again.
	StatusSettled CallStatus = "SETTLED"

	// StatusFailed marks a session that never connected: originate
	// failure, reaper expiry, or a terminal provider event with no
	// usable times.
	StatusFailed CallStatus = "FAILED"
)

// ContactSnapshot freezes the party details as they were at dial time,
// so later contact edits do not rewrite call history.
type ContactSnapshot struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
}

// Call is one dial attempt through its full lifecycle.
//
// Rate fields are snapshots taken at dial time: CallRateDetail is the
// application rate (nil when no admin rate covered the country pair)
// and ProviderRate is the provider's own cost. Settlement prices are
// always computed from these snapshots, never from current rates.
type Call struct {
	ID string `json:"id"`

	CallerID   string `json:"caller_id"`
	ReceiverID string `json:"receiver_id"`

	CallerDetail   ContactSnapshot `json:"caller_detail"`
	ReceiverDetail ContactSnapshot `json:"receiver_detail"`

	Status CallStatus `json:"status"`

	// SID is the provider-assigned call identifier; empty until the
	// provider has responded to the originate request.
	SID string `json:"sid,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	CallRateID     *string                 `json:"call_rate_id,omitempty"`
	CallRateDetail *pricing.CallRateDetail `json:"call_rate_detail,omitempty"`
	ProviderRate   pricing.ProviderRate    `json:"provider_rate"`

	ProviderTotalPrice decimal.Decimal `json:"provider_total_price"`

	CreditUsedID     string          `json:"credit_used_id,omitempty"`
	CreditAmountUsed decimal.Decimal `json:"credit_amount_used"`

	// DebitSkipped is set when settlement found the ledger short: the
	// call stays settled with its computed amounts but no debit was
	// applied, and the condition is flagged for manual follow-up.
	DebitSkipped bool `json:"debit_skipped,omitempty"`

	SettledAt *time.Time `json:"settled_at,omitempty"`

	IsDeletedByCaller   bool `json:"is_deleted_by_caller"`
	IsDeletedByReceiver bool `json:"is_deleted_by_receiver"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RateSource rebuilds the dial-time pricing source from the stored
// snapshots.
func (c *Call) RateSource() pricing.RateSource {
	return pricing.RateSource{Provider: c.ProviderRate, App: c.CallRateDetail}
}

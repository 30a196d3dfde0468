package telephony

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is the telephony boundary used by the billing engine.
//
// Rules:
// - No provider SDK/REST calls outside telephony adapters.
// - Request/response types stay provider-agnostic; business logic never
//   sees raw provider payloads.
// - Webhook payloads are NOT trusted for state: reconciliation always
//   re-fetches the authoritative call detail via FetchCall.
type Provider interface {
	Name() string

	// PlaceCall originates an outbound call and registers a status
	// callback URL for asynchronous progress events.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// FetchCall returns the provider's authoritative view of a call.
	FetchCall(ctx context.Context, providerCallID string) (CallDetail, error)

	// LookupOutboundPrice returns the provider's current cost for
	// connecting fromNumber to toNumber.
	LookupOutboundPrice(ctx context.Context, fromNumber, toNumber string) (OutboundPrice, error)
}

// ErrProviderUnavailable wraps any transport or provider-side failure.
// Callers treat it as retry-later; it is fatal to the current attempt only.
var ErrProviderUnavailable = errors.New("telephony: provider unavailable")

type PlaceCallRequest struct {
	// To and From are full E.164 numbers (country code + national number).
	To   string `json:"to"`
	From string `json:"from"`

	// StatusCallbackURL receives POSTed progress events. The call
	// reference id is threaded through this URL so each in-flight call
	// carries its own context (no shared dial state).
	StatusCallbackURL string `json:"status_callback_url"`
}

type PlaceCallResult struct {
	// ProviderCallID is the provider-assigned call identifier (sid).
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
}

// CallDetail is the authoritative call state fetched from the provider.
type CallDetail struct {
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`

	To   string `json:"to"`
	From string `json:"from"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

type OutboundPrice struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Provider call statuses, as delivered by status callbacks and FetchCall.
const (
	StatusQueued     = "queued"
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusAnswered   = "answered"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusBusy       = "busy"
	StatusFailed     = "failed"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"
)

// IsTerminalStatus reports whether a provider status ends the call
// lifecycle. Terminal events settle the call; non-terminal events only
// advance its state.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics for one user.

type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string `json:"user_id"`

	TotalCalls      int `json:"total_calls"`
	SettledCalls    int `json:"settled_calls"`
	FailedCalls     int `json:"failed_calls"`
	PendingCalls    int `json:"pending_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

// SpendSummaryRequest requests aggregated spend metrics.
// Spend is derived from settled call rows, which are immutable once
// SettledAt is written.

type SpendSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type SpendSummary struct {
	UserID string `json:"user_id"`

	// TotalCreditUsed is what users were charged across settled calls.
	TotalCreditUsed decimal.Decimal `json:"total_credit_used"`

	// TotalProviderCost is what the provider charged the platform.
	TotalProviderCost decimal.Decimal `json:"total_provider_cost"`

	// Margin is credit charged minus provider cost.
	Margin decimal.Decimal `json:"margin"`

	// SkippedDebits counts settlements flagged for insufficient funds;
	// their amounts are included in TotalCreditUsed but were never
	// collected.
	SkippedDebits int `json:"skipped_debits"`
}

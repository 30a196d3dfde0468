package pricing

import "github.com/shopspring/decimal"

// Monetary amounts use decimal.Decimal end to end (NUMERIC in Postgres).
// Never convert prices through float64.

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyINR Currency = "INR"
)

type DurationUnit string

const (
	UnitSecond DurationUnit = "SECOND"
	UnitMinute DurationUnit = "MINUTE"
	UnitHour   DurationUnit = "HOUR"
)

// CallRateDetail is an immutable price specification: "Price per Duration
// DurationUnits, plus a flat Tax per settlement."
//
// It is snapshotted into a call record at dial time and never recomputed
// from rate tables afterwards, so historical calls are unaffected by
// later rate changes.
type CallRateDetail struct {
	Duration     int             `json:"duration" db:"duration"`
	DurationUnit DurationUnit    `json:"duration_unit" db:"duration_unit"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Tax          decimal.Decimal `json:"tax" db:"tax"`
	Currency     Currency        `json:"currency" db:"currency"`
}

// ProviderRate is the telephony provider's own price specification for a
// call, captured at dial time alongside the application rate.
type ProviderRate struct {
	Name string `json:"name" db:"name"`
	CallRateDetail
}

// RateSource pairs the provider's price snapshot with the optional
// application rate snapshot. The application rate, when configured, is
// authoritative for what the user is charged; otherwise the provider's
// own cost is passed through.
type RateSource struct {
	Provider ProviderRate
	App      *CallRateDetail
}

// ChargeSpec returns the specification the user's credit is charged by.
func (r RateSource) ChargeSpec() *CallRateDetail {
	if r.App != nil {
		return r.App
	}
	spec := r.Provider.CallRateDetail
	return &spec
}

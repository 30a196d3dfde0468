package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComputePrice settles the price of a call that ran from start to end
// under the given specification.
//
// Contract:
// - nil spec means "no chargeable rate known" and yields zero; callers
//   must treat that as unbillable, not as an error.
// - Elapsed time is |end - start|, converted to the spec's duration unit
//   rounding up to the next whole unit.
// - Billing increments = ceil(elapsedUnits / spec.Duration); a spec
//   duration <= 0 counts as 1.
// - Result = increments * Price + Tax. Tax is flat, applied once per
//   settlement, not per increment.
//
// Pure and deterministic; no I/O.
func ComputePrice(start, end time.Time, spec *CallRateDetail) decimal.Decimal {
	if spec == nil {
		return decimal.Zero
	}

	perDuration := int64(spec.Duration)
	if perDuration <= 0 {
		perDuration = 1
	}

	elapsed := elapsedUnits(start, end, spec.DurationUnit)

	increments := elapsed / perDuration
	if elapsed%perDuration != 0 || increments == 0 {
		// Partial increments bill as whole; zero elapsed still bills one.
		increments++
	}

	return spec.Price.Mul(decimal.NewFromInt(increments)).Add(spec.Tax)
}

// elapsedUnits converts |end-start| into whole units, rounding up.
func elapsedUnits(start, end time.Time, unit DurationUnit) int64 {
	diff := end.Sub(start)
	if diff < 0 {
		diff = -diff
	}
	ms := diff.Milliseconds()

	var unitMs int64
	switch unit {
	case UnitHour:
		unitMs = 60 * 60 * 1000
	case UnitMinute:
		unitMs = 60 * 1000
	case UnitSecond:
		unitMs = 1000
	default:
		return 0
	}

	units := ms / unitMs
	if ms%unitMs != 0 {
		units++
	}
	return units
}

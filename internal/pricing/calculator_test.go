package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func at(hh, mm, ss int) time.Time {
	return time.Date(2024, 3, 10, hh, mm, ss, 0, time.UTC)
}

func spec(duration int, unit DurationUnit, price, tax string) *CallRateDetail {
	return &CallRateDetail{
		Duration:     duration,
		DurationUnit: unit,
		Price:        decimal.RequireFromString(price),
		Tax:          decimal.RequireFromString(tax),
		Currency:     CurrencyUSD,
	}
}

func TestComputePrice_NilSpecIsZero(t *testing.T) {
	got := ComputePrice(at(10, 0, 0), at(11, 0, 0), nil)
	if !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestComputePrice_PerMinuteRoundsUp(t *testing.T) {
	// 61s billed per minute is 2 increments.
	got := ComputePrice(at(10, 0, 0), at(10, 1, 1), spec(1, UnitMinute, "5", "0.5"))
	if want := decimal.RequireFromString("10.5"); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputePrice_PerSecond(t *testing.T) {
	got := ComputePrice(at(10, 0, 0), at(10, 0, 30), spec(1, UnitSecond, "0.1", "0"))
	if want := decimal.RequireFromString("3"); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputePrice_ZeroElapsedBillsOneIncrement(t *testing.T) {
	got := ComputePrice(at(10, 0, 0), at(10, 0, 0), spec(1, UnitMinute, "2", "0.25"))
	if want := decimal.RequireFromString("2.25"); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputePrice_ReversedTimesUseAbsoluteElapsed(t *testing.T) {
	forward := ComputePrice(at(10, 0, 0), at(10, 5, 0), spec(1, UnitMinute, "1", "0"))
	backward := ComputePrice(at(10, 5, 0), at(10, 0, 0), spec(1, UnitMinute, "1", "0"))
	if !forward.Equal(backward) {
		t.Fatalf("expected %s == %s", forward, backward)
	}
}

func TestComputePrice_MultiUnitDuration(t *testing.T) {
	// Price per 30-second block: 61s is 3 blocks.
	got := ComputePrice(at(10, 0, 0), at(10, 1, 1), spec(30, UnitSecond, "0.2", "0"))
	if want := decimal.RequireFromString("0.6"); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputePrice_NonPositiveDurationDefaultsToOne(t *testing.T) {
	got := ComputePrice(at(10, 0, 0), at(10, 2, 0), spec(0, UnitMinute, "3", "0"))
	if want := decimal.RequireFromString("6"); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputePrice_HourUnit(t *testing.T) {
	// 61 minutes per hour rounds to 2 hours.
	got := ComputePrice(at(10, 0, 0), at(11, 1, 0), spec(1, UnitHour, "10", "1"))
	if want := decimal.RequireFromString("21"); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputePrice_MonotonicInElapsed(t *testing.T) {
	s := spec(1, UnitMinute, "0.5", "0.1")
	prev := decimal.Zero
	for sec := 0; sec <= 600; sec += 30 {
		got := ComputePrice(at(10, 0, 0), at(10, 0, 0).Add(time.Duration(sec)*time.Second), s)
		if got.LessThan(prev) {
			t.Fatalf("price decreased at %ds: %s < %s", sec, got, prev)
		}
		prev = got
	}
}

func TestRateSource_ChargeSpec(t *testing.T) {
	provider := ProviderRate{Name: "twilio", CallRateDetail: *spec(1, UnitMinute, "0.015", "0")}

	rs := RateSource{Provider: provider}
	if got := rs.ChargeSpec(); !got.Price.Equal(provider.Price) {
		t.Fatalf("expected provider price fallback, got %s", got.Price)
	}

	app := spec(1, UnitMinute, "0.05", "0.01")
	rs = RateSource{Provider: provider, App: app}
	if got := rs.ChargeSpec(); !got.Price.Equal(app.Price) {
		t.Fatalf("expected application price, got %s", got.Price)
	}
}

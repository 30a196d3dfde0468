package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"calling-platform/internal/calls"
)

func settledRow(userID string, created time.Time, duration time.Duration, creditUsed, providerCost float64, skipped bool) calls.Call {
	start := created.Add(time.Minute)
	end := start.Add(duration)
	now := end
	return calls.Call{
		ID:                 "call-" + created.Format("150405"),
		CallerID:           userID,
		ReceiverID:         "contact-other",
		Status:             calls.StatusSettled,
		StartedAt:          &start,
		EndedAt:            &end,
		CreditAmountUsed:   decimal.NewFromFloat(creditUsed),
		ProviderTotalPrice: decimal.NewFromFloat(providerCost),
		DebitSkipped:       skipped,
		SettledAt:          &now,
		CreatedAt:          created,
	}
}

func TestCallsSummary(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	repo.Add(settledRow("u1", base, 60*time.Second, 2.0, 0.013, false))
	repo.Add(settledRow("u1", base.Add(time.Hour), 120*time.Second, 3.5, 0.026, false))
	repo.Add(calls.Call{ID: "c3", CallerID: "u1", Status: calls.StatusFailed, CreatedAt: base.Add(2 * time.Hour)})
	repo.Add(calls.Call{ID: "c4", CallerID: "u2", Status: calls.StatusSettled, CreatedAt: base})

	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		UserID: "u1",
		Range:  TimeRange{From: base.Add(-time.Hour), To: base.Add(24 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.TotalCalls != 3 || got.SettledCalls != 2 || got.FailedCalls != 1 {
		t.Fatalf("counts wrong: %+v", got)
	}
	if got.TotalDurationSeconds != 180 || got.AverageDurationSeconds != 60 {
		t.Fatalf("durations wrong: %+v", got)
	}
}

func TestCallsSummaryValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Now()

	cases := []CallsSummaryRequest{
		{Range: TimeRange{From: now.Add(-time.Hour), To: now}},
		{UserID: "u1"},
		{UserID: "u1", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
	}
	for _, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestSpendSummary(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	repo.Add(settledRow("u1", base, 60*time.Second, 2.0, 0.013, false))
	repo.Add(settledRow("u1", base.Add(time.Hour), 61*time.Second, 3.5, 0.026, true))
	// Failed calls carry no spend.
	repo.Add(calls.Call{ID: "c3", CallerID: "u1", Status: calls.StatusFailed, CreatedAt: base})

	got, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		UserID: "u1",
		Range:  TimeRange{From: base.Add(-time.Hour), To: base.Add(24 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("spend summary: %v", err)
	}
	if !got.TotalCreditUsed.Equal(decimal.NewFromFloat(5.5)) {
		t.Fatalf("credit used = %s, want 5.5", got.TotalCreditUsed)
	}
	if !got.TotalProviderCost.Equal(decimal.NewFromFloat(0.039)) {
		t.Fatalf("provider cost = %s, want 0.039", got.TotalProviderCost)
	}
	if !got.Margin.Equal(decimal.NewFromFloat(5.461)) {
		t.Fatalf("margin = %s, want 5.461", got.Margin)
	}
	if got.SkippedDebits != 1 {
		t.Fatalf("skipped debits = %d, want 1", got.SkippedDebits)
	}
}

package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Message: "no type"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogRateChange(context.Background(), "u", "admin", "1.2.3.4", "rate1", "rate replaced", "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeRateChange {
		t.Fatalf("expected rate_change")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}
}

func TestService_DebitSkippedFlag(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogDebitSkipped(context.Background(), "call1", "credit1", `{"amount":"10.5"}`); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != EventTypeDebitSkipped {
		t.Fatalf("expected insufficient funds flag, got %+v", evs)
	}
	if evs[0].CallID != "call1" || evs[0].CreditID != "credit1" {
		t.Fatalf("expected target refs captured: %+v", evs[0])
	}
}

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogRateChange records an admin creating, replacing or deleting a call rate.
func (s *Service) LogRateChange(ctx context.Context, actorUserID, actorRole, ip, callRateID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeRateChange,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		CallRateID:  callRateID,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogDebitSkipped flags a settlement that could not debit the ledger.
func (s *Service) LogDebitSkipped(ctx context.Context, callID, creditID, metadata string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeDebitSkipped,
		CallID:   callID,
		CreditID: creditID,
		Message:  "settlement debit skipped: insufficient funds",
		Metadata: metadata,
	})
}

// LogCreditTopUp records a balance top-up.
func (s *Service) LogCreditTopUp(ctx context.Context, actorUserID, ip, creditID, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCreditTopUp,
		ActorUserID: actorUserID,
		IPAddress:   ip,
		CreditID:    creditID,
		Message:     "credit topped up",
		Metadata:    metadata,
	})
}

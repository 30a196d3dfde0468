package reporting

import (
	"context"
	"errors"
	"time"

	"calling-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce user scoping.
// - Implementations should query immutable sources when possible (settled call rows, audit).

type Repository interface {
	ListUserCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListUserCalls(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID}
	for _, c := range rows {
		out.TotalCalls++
		if c.StartedAt != nil && c.EndedAt != nil {
			out.TotalDurationSeconds += int(c.EndedAt.Sub(*c.StartedAt) / time.Second)
		}
		switch c.Status {
		case calls.StatusSettled:
			out.SettledCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusPending:
			out.PendingCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.UserID == "" {
		return SpendSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListUserCalls(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{UserID: req.UserID}
	for _, c := range rows {
		if c.Status != calls.StatusSettled {
			continue
		}
		out.TotalCreditUsed = out.TotalCreditUsed.Add(c.CreditAmountUsed)
		out.TotalProviderCost = out.TotalProviderCost.Add(c.ProviderTotalPrice)
		if c.DebitSkipped {
			out.SkippedDebits++
		}
	}
	out.Margin = out.TotalCreditUsed.Sub(out.TotalProviderCost)
	return out, nil
}

package rates

import (
	"context"
	"errors"
	"time"

	"calling-platform/internal/pricing"
)

var (
	ErrNotFound        = errors.New("rates: not found")
	ErrInvalidArgument = errors.New("rates: invalid argument")
)

// Store abstracts call rate persistence.
type Store interface {
	// Upsert creates or replaces the active rate for the country-code
	// pair in params; the match-or-insert is atomic.
	Upsert(ctx context.Context, params UpsertParams) (CallRate, error)

	// FindActive returns the non-deleted rate for the pair, if any.
	FindActive(ctx context.Context, fromCountryCode, toCountryCode string) (CallRate, bool, error)

	GetByID(ctx context.Context, id string) (CallRate, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]CallRate, int, error)

	// SoftDelete hides the rate from future dials without removing it;
	// historical calls keep referencing the row.
	SoftDelete(ctx context.Context, id, deletedBy string, now time.Time) (CallRate, error)
}

type UpsertParams struct {
	FromCountryCode string
	ToCountryCode   string
	FromCountryName string
	ToCountryName   string

	Detail pricing.CallRateDetail

	AdminID string
}

type ListFilter struct {
	FromCountryCode string
	ToCountryCode   string
	FromCountryName string
	ToCountryName   string
}

// Service wraps the store with admin-facing validation.
type Service struct {
	store Store
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

func (s *Service) Upsert(ctx context.Context, params UpsertParams) (CallRate, error) {
	if params.AdminID == "" {
		return CallRate{}, ErrInvalidArgument
	}
	if params.FromCountryCode == "" || params.ToCountryCode == "" {
		return CallRate{}, ErrInvalidArgument
	}
	if params.Detail.Price.IsNegative() || params.Detail.Tax.IsNegative() {
		return CallRate{}, ErrInvalidArgument
	}
	if params.Detail.Duration <= 0 {
		params.Detail.Duration = 1
	}
	if params.Detail.DurationUnit == "" {
		params.Detail.DurationUnit = pricing.UnitMinute
	}
	if params.Detail.Currency == "" {
		params.Detail.Currency = pricing.CurrencyUSD
	}
	return s.store.Upsert(ctx, params)
}

func (s *Service) GetByID(ctx context.Context, id string) (CallRate, error) {
	if id == "" {
		return CallRate{}, ErrInvalidArgument
	}
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, pageIndex, pageSize int) ([]CallRate, int, error) {
	if pageIndex < 1 {
		pageIndex = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.store.List(ctx, filter, (pageIndex-1)*pageSize, pageSize)
}

func (s *Service) Delete(ctx context.Context, id, adminID string) (CallRate, error) {
	if id == "" || adminID == "" {
		return CallRate{}, ErrInvalidArgument
	}
	return s.store.SoftDelete(ctx, id, adminID, s.clock().UTC())
}

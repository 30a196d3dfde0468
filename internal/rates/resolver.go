package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"calling-platform/internal/pricing"
	"calling-platform/internal/telephony"
)

// Resolver produces the rate snapshots for a dial attempt.
//
// No caching: every dial re-resolves both sources, since provider
// pricing and admin rates change between calls. Historical calls are
// insulated from later changes by the snapshot itself, not by this
// resolver.
type Resolver struct {
	provider telephony.Provider
	store    Store
}

func NewResolver(provider telephony.Provider, store Store) *Resolver {
	return &Resolver{provider: provider, store: store}
}

// ResolveRates asks the provider for its current outbound cost between
// the two numbers and looks up the admin-configured rate for the
// country-code pair.
//
// Provider failure is fatal to the dial attempt
// (telephony.ErrProviderUnavailable). An absent application rate is
// not: the returned RateSource is provider-only and the call will be
// billed at the provider's own cost.
func (r *Resolver) ResolveRates(ctx context.Context, callerNumber, receiverNumber, fromCountryCode, toCountryCode string) (pricing.RateSource, *CallRate, error) {
	price, err := r.provider.LookupOutboundPrice(ctx, callerNumber, receiverNumber)
	if err != nil {
		return pricing.RateSource{}, nil, fmt.Errorf("resolving provider rate: %w", err)
	}

	currency := pricing.Currency(price.Currency)
	if currency == "" {
		currency = pricing.CurrencyUSD
	}

	source := pricing.RateSource{
		Provider: pricing.ProviderRate{
			Name: r.provider.Name(),
			CallRateDetail: pricing.CallRateDetail{
				Duration:     1,
				DurationUnit: pricing.UnitMinute,
				Price:        price.Price,
				Tax:          decimal.Zero,
				Currency:     currency,
			},
		},
	}

	rate, ok, err := r.store.FindActive(ctx, fromCountryCode, toCountryCode)
	if err != nil {
		return pricing.RateSource{}, nil, fmt.Errorf("resolving application rate: %w", err)
	}
	if !ok {
		return source, nil, nil
	}

	detail := rate.Detail()
	source.App = &detail
	return source, &rate, nil
}

package calls

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"calling-platform/internal/contacts"
	"calling-platform/internal/credit"
	"calling-platform/internal/pricing"
	"calling-platform/internal/rates"
	"calling-platform/internal/telephony"
	"calling-platform/internal/users"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResolver struct {
	source pricing.RateSource
	rate   *rates.CallRate
	err    error
}

func (s *stubResolver) ResolveRates(ctx context.Context, callerNumber, receiverNumber, fromCountryCode, toCountryCode string) (pricing.RateSource, *rates.CallRate, error) {
	return s.source, s.rate, s.err
}

type stubBalances struct {
	credit credit.Credit
	err    error
}

func (s *stubBalances) GetBalance(ctx context.Context, userID string) (credit.Credit, error) {
	return s.credit, s.err
}

type fakeProvider struct {
	placeCalls int
	placeErr   error
	lastReq    telephony.PlaceCallRequest

	detail   telephony.CallDetail
	fetchErr error
}

func (f *fakeProvider) Name() string { return "twilio" }

func (f *fakeProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	f.placeCalls++
	f.lastReq = req
	if f.placeErr != nil {
		return telephony.PlaceCallResult{}, f.placeErr
	}
	return telephony.PlaceCallResult{ProviderCallID: "CA" + strings.Repeat("0", 32), Status: telephony.StatusQueued}, nil
}

func (f *fakeProvider) FetchCall(ctx context.Context, providerCallID string) (telephony.CallDetail, error) {
	if f.fetchErr != nil {
		return telephony.CallDetail{}, f.fetchErr
	}
	return f.detail, nil
}

func (f *fakeProvider) LookupOutboundPrice(ctx context.Context, fromNumber, toNumber string) (telephony.OutboundPrice, error) {
	return telephony.OutboundPrice{Price: decimal.NewFromFloat(0.013), Currency: "USD"}, nil
}

type deniedLocker struct{}

func (deniedLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return false, nil
}
func (deniedLocker) Release(ctx context.Context, key, owner string) error { return nil }

type dialFixture struct {
	store    *MemoryStore
	contacts *contacts.MemoryStore
	provider *fakeProvider
	resolver *stubResolver
	balances *stubBalances
	caller   users.User
}

func appRateSource() pricing.RateSource {
	app := &pricing.CallRateDetail{
		Duration:     1,
		DurationUnit: pricing.UnitMinute,
		Price:        decimal.NewFromFloat(1.5),
		Tax:          decimal.NewFromFloat(0.5),
		Currency:     pricing.CurrencyUSD,
	}
	return pricing.RateSource{
		Provider: pricing.ProviderRate{
			Name: "twilio",
			CallRateDetail: pricing.CallRateDetail{
				Duration:     1,
				DurationUnit: pricing.UnitMinute,
				Price:        decimal.NewFromFloat(0.013),
				Currency:     pricing.CurrencyUSD,
			},
		},
		App: app,
	}
}

func newDialFixture(t *testing.T) *dialFixture {
	t.Helper()
	f := &dialFixture{
		store:    NewMemoryStore(),
		contacts: contacts.NewMemoryStore(),
		provider: &fakeProvider{},
		resolver: &stubResolver{source: appRateSource()},
		balances: &stubBalances{credit: credit.Credit{
			ID:              "credit-1",
			UsedBy:          "user-1",
			RemainingAmount: decimal.NewFromInt(100),
		}},
	}
	callerContact := f.contacts.Seed(contacts.Contact{
		ID:          "contact-caller",
		Name:        "Asha",
		PhoneNumber: "+15550001111",
		CountryCode: "US",
		SID:         "PN-verified-caller",
	})
	f.contacts.Seed(contacts.Contact{
		ID:          "contact-receiver",
		Name:        "Ravi",
		PhoneNumber: "+919900112233",
		CountryCode: "IN",
		SID:         "PN-verified-receiver",
	})
	f.caller = users.User{ID: "user-1", Name: "Asha", ContactID: callerContact.ID, CreditID: "credit-1"}
	return f
}

func (f *dialFixture) orchestrator(locker PairLocker) *Orchestrator {
	return NewOrchestrator(f.store, f.contacts, f.resolver, f.balances, f.provider, locker,
		testLogger(), OrchestratorConfig{CallbackBaseURL: "https://api.example.com", DialLockTTL: time.Second})
}

func TestPlaceCallHappyPath(t *testing.T) {
	f := newDialFixture(t)
	o := f.orchestrator(nil)

	call, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN")
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if call.Status != StatusPending {
		t.Fatalf("expected pending session, got %s", call.Status)
	}
	if call.SID == "" {
		t.Fatal("expected provider sid recorded")
	}
	if f.provider.placeCalls != 1 {
		t.Fatalf("expected one originate, got %d", f.provider.placeCalls)
	}
	if call.CreditUsedID != "credit-1" {
		t.Fatalf("credit ref not snapshotted: %q", call.CreditUsedID)
	}
	if call.CallRateDetail == nil || !call.CallRateDetail.Price.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("app rate not snapshotted: %+v", call.CallRateDetail)
	}
	if call.CallerDetail.PhoneNumber != "+15550001111" || call.ReceiverDetail.PhoneNumber != "+919900112233" {
		t.Fatalf("party snapshots wrong: %+v %+v", call.CallerDetail, call.ReceiverDetail)
	}
}

func TestPlaceCallThreadsCallRefThroughCallback(t *testing.T) {
	f := newDialFixture(t)
	o := f.orchestrator(nil)

	call, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN")
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	wantPrefix := "https://api.example.com/webhooks/twilio/status?call_ref="
	if !strings.HasPrefix(f.provider.lastReq.StatusCallbackURL, wantPrefix) {
		t.Fatalf("callback url %q missing call reference", f.provider.lastReq.StatusCallbackURL)
	}
	if !strings.Contains(f.provider.lastReq.StatusCallbackURL, call.ID) {
		t.Fatalf("callback url %q does not carry call id %s", f.provider.lastReq.StatusCallbackURL, call.ID)
	}
}

func TestPlaceCallUnverifiedCaller(t *testing.T) {
	f := newDialFixture(t)
	f.contacts = contacts.NewMemoryStore()
	f.contacts.Seed(contacts.Contact{ID: "contact-caller", PhoneNumber: "+15550001111", CountryCode: "US"})
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); !errors.Is(err, ErrNoVerifiedCallerNumber) {
		t.Fatalf("expected ErrNoVerifiedCallerNumber, got %v", err)
	}
	if f.provider.placeCalls != 0 {
		t.Fatal("provider must not be reached")
	}
}

func TestPlaceCallMissingCallerContact(t *testing.T) {
	f := newDialFixture(t)
	f.contacts = contacts.NewMemoryStore()
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); !errors.Is(err, ErrNoVerifiedCallerNumber) {
		t.Fatalf("expected ErrNoVerifiedCallerNumber, got %v", err)
	}
	if f.provider.placeCalls != 0 {
		t.Fatal("provider must not be reached")
	}
}

func TestPlaceCallUnverifiedDestination(t *testing.T) {
	f := newDialFixture(t)
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+441234567890", "GB"); !errors.Is(err, ErrDestinationNotVerified) {
		t.Fatalf("expected ErrDestinationNotVerified, got %v", err)
	}
	// The dial attempt still registered the destination as a contact.
	if _, ok, _ := f.contacts.FindByNumber(context.Background(), "+441234567890"); !ok {
		t.Fatal("destination contact should have been created")
	}
}

func TestPlaceCallSelfDial(t *testing.T) {
	f := newDialFixture(t)
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+15550001111", "US"); !errors.Is(err, ErrCallerCannotDialSelf) {
		t.Fatalf("expected ErrCallerCannotDialSelf, got %v", err)
	}
}

func TestPlaceCallInsufficientBalance(t *testing.T) {
	f := newDialFixture(t)
	// One increment of the app rate costs 2.0; balance just below.
	f.balances.credit.RemainingAmount = decimal.NewFromFloat(1.99)
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.provider.placeCalls != 0 {
		t.Fatal("provider must not be reached on failed pre-flight")
	}
}

func TestPlaceCallMissingLedger(t *testing.T) {
	f := newDialFixture(t)
	f.balances.credit = credit.Credit{}
	f.balances.err = credit.ErrNotFound
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.provider.placeCalls != 0 {
		t.Fatal("provider must not be reached")
	}
}

func TestPlaceCallBalanceChecksHigherRate(t *testing.T) {
	f := newDialFixture(t)
	// Provider-only pricing: one increment costs 0.013.
	f.resolver.source.App = nil
	f.balances.credit.RemainingAmount = decimal.NewFromFloat(0.02)
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); err != nil {
		t.Fatalf("provider-only rate should pass pre-flight: %v", err)
	}
}

func TestPlaceCallProviderUnavailable(t *testing.T) {
	f := newDialFixture(t)
	f.resolver.err = telephony.ErrProviderUnavailable
	o := f.orchestrator(nil)

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); !errors.Is(err, telephony.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestPlaceCallDuplicateRequestDeduplicates(t *testing.T) {
	f := newDialFixture(t)
	o := f.orchestrator(nil)
	ctx := context.Background()

	first, err := o.PlaceCall(ctx, f.caller, "+919900112233", "IN")
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}

	// The sid is recorded after originate, so a retried request before
	// any webhook observes the same pending row only while sid is
	// still empty; simulate that by clearing it.
	f.store.mu.Lock()
	f.store.calls[0].SID = ""
	f.store.mu.Unlock()

	second, err := o.PlaceCall(ctx, f.caller, "+919900112233", "IN")
	if err != nil {
		t.Fatalf("duplicate dial: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate dial created a second pending row: %s vs %s", second.ID, first.ID)
	}
	if f.provider.placeCalls != 1 {
		t.Fatalf("duplicate dial must not re-originate, got %d originates", f.provider.placeCalls)
	}
}

func TestPlaceCallDialLockDenied(t *testing.T) {
	f := newDialFixture(t)
	o := f.orchestrator(deniedLocker{})

	if _, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN"); !errors.Is(err, ErrDialInProgress) {
		t.Fatalf("expected ErrDialInProgress, got %v", err)
	}
	if f.provider.placeCalls != 0 {
		t.Fatal("provider must not be reached while pair is locked")
	}
}

func TestPlaceCallOriginateFailureMarksCallFailed(t *testing.T) {
	f := newDialFixture(t)
	f.provider.placeErr = telephony.ErrProviderUnavailable
	o := f.orchestrator(nil)

	_, err := o.PlaceCall(context.Background(), f.caller, "+919900112233", "IN")
	if !errors.Is(err, telephony.ErrProviderUnavailable) {
		t.Fatalf("expected originate error, got %v", err)
	}

	rows, total, err := f.store.List(context.Background(), ListFilter{Status: StatusFailed}, 0, 10)
	if err != nil || total != 1 {
		t.Fatalf("expected one failed row, got total=%d err=%v", total, err)
	}
	if rows[0].SID != "" {
		t.Fatalf("failed originate must leave sid empty: %q", rows[0].SID)
	}
}

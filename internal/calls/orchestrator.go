package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"calling-platform/internal/contacts"
	"calling-platform/internal/credit"
	"calling-platform/internal/monitoring"
	"calling-platform/internal/pricing"
	"calling-platform/internal/rates"
	"calling-platform/internal/telephony"
	"calling-platform/internal/users"
	"calling-platform/pkg/utils"
)

// RateResolver supplies the dial-time pricing snapshots.
type RateResolver interface {
	ResolveRates(ctx context.Context, callerNumber, receiverNumber, fromCountryCode, toCountryCode string) (pricing.RateSource, *rates.CallRate, error)
}

// BalanceReader is the slice of the credit service the orchestrator
// needs for its pre-flight check.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (credit.Credit, error)
}

// PairLocker serializes concurrent dial attempts between the same two
// parties. The database upsert remains the real uniqueness guarantee;
// the lock just keeps racing requests from both reaching the provider.
type PairLocker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// RedisPairLocker implements PairLocker on a shared Redis.
type RedisPairLocker struct {
	rdb *redis.Client
}

func NewRedisPairLocker(rdb *redis.Client) *RedisPairLocker {
	return &RedisPairLocker{rdb: rdb}
}

func (l *RedisPairLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return utils.AcquireLock(ctx, l.rdb, key, owner, ttl)
}

func (l *RedisPairLocker) Release(ctx context.Context, key, owner string) error {
	return utils.ReleaseLock(ctx, l.rdb, key, owner)
}

// NoopPairLocker always grants the lock. Tests and single-node deploys
// without Redis fall back to the upsert alone.
type NoopPairLocker struct{}

func (NoopPairLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopPairLocker) Release(ctx context.Context, key, owner string) error { return nil }

// Orchestrator validates dial preconditions, snapshots pricing, creates
// the pending session and originates the call with the provider.
type Orchestrator struct {
	store    Store
	contacts contacts.Store
	resolver RateResolver
	balances BalanceReader
	provider telephony.Provider
	locker   PairLocker
	logger   *slog.Logger

	callbackBaseURL string
	dialLockTTL     time.Duration
}

type OrchestratorConfig struct {
	// CallbackBaseURL is the externally reachable base URL status
	// callbacks are delivered to.
	CallbackBaseURL string
	DialLockTTL     time.Duration
}

func NewOrchestrator(store Store, contactStore contacts.Store, resolver RateResolver,
	balances BalanceReader, provider telephony.Provider, locker PairLocker,
	logger *slog.Logger, cfg OrchestratorConfig) *Orchestrator {
	if locker == nil {
		locker = NoopPairLocker{}
	}
	if cfg.DialLockTTL <= 0 {
		cfg.DialLockTTL = 30 * time.Second
	}
	return &Orchestrator{
		store:           store,
		contacts:        contactStore,
		resolver:        resolver,
		balances:        balances,
		provider:        provider,
		locker:          locker,
		logger:          logger,
		callbackBaseURL: cfg.CallbackBaseURL,
		dialLockTTL:     cfg.DialLockTTL,
	}
}

// PlaceCall runs the full dial flow for caller against the destination
// number. On success the returned Call is the pending session with the
// provider sid recorded; billing happens later, at settlement.
func (o *Orchestrator) PlaceCall(ctx context.Context, caller users.User, phoneNumber, countryCode string) (Call, error) {
	if phoneNumber == "" || countryCode == "" {
		return Call{}, ErrInvalidArgument
	}

	callerContact, err := o.contacts.GetByID(ctx, caller.ContactID)
	if errors.Is(err, contacts.ErrNotFound) {
		// A caller with no contact record has no verified number either.
		monitoring.RecordDial("rejected_unverified_caller")
		return Call{}, ErrNoVerifiedCallerNumber
	}
	if err != nil {
		return Call{}, fmt.Errorf("loading caller contact: %w", err)
	}
	if !callerContact.Verified() {
		monitoring.RecordDial("rejected_unverified_caller")
		return Call{}, ErrNoVerifiedCallerNumber
	}
	if callerContact.PhoneNumber == phoneNumber {
		return Call{}, ErrCallerCannotDialSelf
	}

	receiverContact, err := o.contacts.FindOrCreate(ctx, phoneNumber, countryCode, "")
	if err != nil {
		return Call{}, fmt.Errorf("resolving destination contact: %w", err)
	}
	if !receiverContact.Verified() {
		monitoring.RecordDial("rejected_unverified_destination")
		return Call{}, ErrDestinationNotVerified
	}

	source, rate, err := o.resolver.ResolveRates(ctx, callerContact.PhoneNumber, receiverContact.PhoneNumber,
		callerContact.CountryCode, receiverContact.CountryCode)
	if err != nil {
		monitoring.RecordDial("rejected_rate_unavailable")
		return Call{}, err
	}

	// Pre-flight only: the real charge is computed at settlement from
	// actual duration. One increment of the dearer rate must be
	// affordable now.
	balance, err := o.balances.GetBalance(ctx, caller.ID)
	if errors.Is(err, credit.ErrNotFound) {
		// No ledger at all cannot cover any charge.
		monitoring.RecordDial("rejected_insufficient_balance")
		return Call{}, ErrInsufficientBalance
	}
	if err != nil {
		return Call{}, fmt.Errorf("loading caller balance: %w", err)
	}
	minCharge := source.Provider.Price.Add(source.Provider.Tax)
	if source.App != nil {
		if appCharge := source.App.Price.Add(source.App.Tax); appCharge.GreaterThan(minCharge) {
			minCharge = appCharge
		}
	}
	if balance.RemainingAmount.LessThan(minCharge) {
		monitoring.RecordDial("rejected_insufficient_balance")
		return Call{}, ErrInsufficientBalance
	}

	lockKey := "dial:" + callerContact.ID + ":" + receiverContact.ID
	lockOwner := uuid.NewString()
	acquired, err := o.locker.Acquire(ctx, lockKey, lockOwner, o.dialLockTTL)
	if err != nil {
		return Call{}, fmt.Errorf("acquiring dial lock: %w", err)
	}
	if !acquired {
		monitoring.RecordDial("rejected_dial_in_progress")
		return Call{}, ErrDialInProgress
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), lockKey, lockOwner); err != nil {
			o.logger.Warn("releasing dial lock failed", "key", lockKey, "error", err)
		}
	}()

	params := PendingParams{
		CallerID:   callerContact.ID,
		ReceiverID: receiverContact.ID,
		CallerDetail: ContactSnapshot{
			Name:        callerContact.Name,
			PhoneNumber: callerContact.PhoneNumber,
			CountryCode: callerContact.CountryCode,
		},
		ReceiverDetail: ContactSnapshot{
			Name:        receiverContact.Name,
			PhoneNumber: receiverContact.PhoneNumber,
			CountryCode: receiverContact.CountryCode,
		},
		ProviderRate: source.Provider,
		CreditUsedID: balance.ID,
	}
	if rate != nil {
		rateID := rate.ID
		params.CallRateID = &rateID
	}
	params.CallRateDetail = source.App

	call, created, err := o.store.FindOrCreatePending(ctx, params)
	if err != nil {
		return Call{}, fmt.Errorf("creating pending call: %w", err)
	}
	if !created {
		// A retried or duplicate dial request observes the original
		// pending session instead of double-originating.
		monitoring.RecordDial("deduplicated")
		return call, nil
	}

	callbackURL, err := o.statusCallbackURL(call.ID)
	if err != nil {
		return Call{}, err
	}

	result, err := o.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:                receiverContact.PhoneNumber,
		From:              callerContact.PhoneNumber,
		StatusCallbackURL: callbackURL,
	})
	if err != nil {
		if markErr := o.store.MarkFailed(context.WithoutCancel(ctx), call.ID); markErr != nil {
			o.logger.Error("marking failed call after originate error", "call_id", call.ID, "error", markErr)
		}
		monitoring.RecordDial("originate_failed")
		return Call{}, fmt.Errorf("originating call: %w", err)
	}

	call, err = o.store.SetSID(ctx, call.ID, result.ProviderCallID)
	if err != nil {
		return Call{}, fmt.Errorf("recording provider call id: %w", err)
	}

	o.logger.Info("call placed",
		"call_id", call.ID,
		"sid", result.ProviderCallID,
		"caller_contact", callerContact.ID,
		"receiver_contact", receiverContact.ID)
	monitoring.RecordDial("placed")
	return call, nil
}

// statusCallbackURL threads the call reference through the provider's
// status callback so each event self-identifies its session.
func (o *Orchestrator) statusCallbackURL(callID string) (string, error) {
	base, err := url.Parse(o.callbackBaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing callback base url: %w", err)
	}
	cb := base.JoinPath("webhooks", "twilio", "status")
	q := cb.Query()
	q.Set("call_ref", callID)
	cb.RawQuery = q.Encode()
	return cb.String(), nil
}

package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"calling-platform/internal/audit"
	"calling-platform/internal/monitoring"
	"calling-platform/internal/pricing"
	"calling-platform/internal/telephony"
)

// Reconciler matches asynchronous provider status events to call
// sessions and advances them. It must be idempotent under at-least-once
// delivery: duplicates and late events are no-ops.
type Reconciler struct {
	store    Store
	provider telephony.Provider
	auditor  *audit.Service
	logger   *slog.Logger
}

func NewReconciler(store Store, provider telephony.Provider, auditor *audit.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, provider: provider, auditor: auditor, logger: logger}
}

// Reconcile processes one status callback. callRef is the call id the
// orchestrator threaded through the callback URL; it may be empty or
// garbage for events originating outside this system, in which case
// matching falls back to the provider sid and then to the open pending
// row for the number pair.
//
// Errors are for the caller's log only. The webhook handler always
// acknowledges the provider regardless.
func (r *Reconciler) Reconcile(ctx context.Context, callRef string, form telephony.StatusCallbackForm) error {
	if form.CallSid == "" {
		monitoring.RecordUnmatchedWebhook()
		return errors.New("status callback without CallSid")
	}

	// The webhook payload only locates the call; state comes from the
	// provider's authoritative record.
	detail, err := r.provider.FetchCall(ctx, form.CallSid)
	if err != nil {
		return fmt.Errorf("fetching authoritative call detail: %w", err)
	}

	call, found, err := r.match(ctx, callRef, detail)
	if err != nil {
		return err
	}
	if !found {
		monitoring.RecordUnmatchedWebhook()
		r.logger.Warn("status callback matched no call session",
			"sid", detail.ProviderCallID, "status", detail.Status)
		return nil
	}
	if call.SettledAt != nil {
		monitoring.RecordDuplicateWebhook()
		r.logger.Debug("duplicate status callback for settled call",
			"call_id", call.ID, "sid", detail.ProviderCallID)
		return nil
	}

	if !telephony.IsTerminalStatus(detail.Status) {
		_, err := r.store.UpdateProgress(ctx, call.ID, ProgressParams{
			SID:       detail.ProviderCallID,
			Status:    StatusInProgress,
			StartedAt: detail.StartTime,
		})
		if errors.Is(err, ErrNotFound) {
			// Settled between our read and the update; a later
			// delivery of the terminal event already won.
			monitoring.RecordDuplicateWebhook()
			return nil
		}
		if err != nil {
			return fmt.Errorf("advancing call state: %w", err)
		}
		return nil
	}

	return r.settle(ctx, call, detail)
}

func (r *Reconciler) match(ctx context.Context, callRef string, detail telephony.CallDetail) (Call, bool, error) {
	if _, err := uuid.Parse(callRef); err == nil {
		call, err := r.store.GetByID(ctx, callRef)
		switch {
		case errors.Is(err, ErrNotFound):
			// Fall through to the legacy strategies.
		case err != nil:
			return Call{}, false, fmt.Errorf("matching call by reference: %w", err)
		case call.IsDeletedByCaller || call.IsDeletedByReceiver:
			return Call{}, false, nil
		default:
			return call, true, nil
		}
	}

	call, found, err := r.store.FindBySID(ctx, detail.ProviderCallID)
	if err != nil {
		return Call{}, false, fmt.Errorf("matching call by sid: %w", err)
	}
	if found {
		return call, true, nil
	}

	// Legacy fallback: the open pending row between the two numbers.
	// Ambiguous by construction when concurrent pendings exist, which
	// the orchestrator's upsert prevents.
	call, found, err = r.store.FindPendingByNumbers(ctx, detail.From, detail.To)
	if err != nil {
		return Call{}, false, fmt.Errorf("matching pending call by numbers: %w", err)
	}
	return call, found, nil
}

func (r *Reconciler) settle(ctx context.Context, call Call, detail telephony.CallDetail) error {
	params := SettleParams{
		SID:       detail.ProviderCallID,
		StartedAt: detail.StartTime,
		EndedAt:   detail.EndTime,
	}

	// A terminal event without both times never connected; close the
	// session without charging.
	priced := detail.Status == telephony.StatusCompleted && detail.StartTime != nil && detail.EndTime != nil
	if priced {
		source := call.RateSource()
		providerSpec := source.Provider.CallRateDetail
		params.Status = StatusSettled
		params.ProviderTotalPrice = pricing.ComputePrice(*detail.StartTime, *detail.EndTime, &providerSpec)
		params.CreditAmountUsed = pricing.ComputePrice(*detail.StartTime, *detail.EndTime, source.ChargeSpec())
	} else {
		params.Status = StatusFailed
	}

	result, err := r.store.Settle(ctx, call.ID, params)
	if err != nil {
		return fmt.Errorf("settling call: %w", err)
	}
	if result.AlreadySettled {
		monitoring.RecordDuplicateWebhook()
		return nil
	}

	if priced && !result.DebitApplied && params.CreditAmountUsed.IsPositive() {
		monitoring.RecordDebitSkipped()
		monitoring.RecordSettlement("debit_skipped")
		meta := fmt.Sprintf(`{"amount":"%s","sid":"%s"}`, params.CreditAmountUsed, detail.ProviderCallID)
		if err := r.auditor.LogDebitSkipped(ctx, call.ID, call.CreditUsedID, meta); err != nil {
			r.logger.Error("recording insufficient funds flag", "call_id", call.ID, "error", err)
		}
		r.logger.Warn("settlement debit skipped: insufficient funds",
			"call_id", call.ID,
			"credit_id", call.CreditUsedID,
			"amount", params.CreditAmountUsed)
		return nil
	}

	if priced {
		monitoring.RecordSettlement("settled")
		r.logger.Info("call settled",
			"call_id", call.ID,
			"sid", detail.ProviderCallID,
			"provider_total", params.ProviderTotalPrice,
			"credit_used", params.CreditAmountUsed)
	} else {
		monitoring.RecordSettlement("closed_unpriced")
		r.logger.Info("call closed without charge",
			"call_id", call.ID,
			"sid", detail.ProviderCallID,
			"status", detail.Status)
	}
	return nil
}

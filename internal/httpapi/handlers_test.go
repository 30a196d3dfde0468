package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"calling-platform/internal/audit"
	"calling-platform/internal/calls"
	"calling-platform/internal/telephony"
)

// brokenFetchProvider fails every authoritative fetch, forcing internal
// reconciliation errors.
type brokenFetchProvider struct{}

func (brokenFetchProvider) Name() string { return "twilio" }

func (brokenFetchProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	return telephony.PlaceCallResult{}, telephony.ErrProviderUnavailable
}

func (brokenFetchProvider) FetchCall(ctx context.Context, providerCallID string) (telephony.CallDetail, error) {
	return telephony.CallDetail{}, telephony.ErrProviderUnavailable
}

func (brokenFetchProvider) LookupOutboundPrice(ctx context.Context, fromNumber, toNumber string) (telephony.OutboundPrice, error) {
	return telephony.OutboundPrice{Price: decimal.Zero, Currency: "USD"}, nil
}

func testReconciler() *calls.Reconciler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return calls.NewReconciler(calls.NewMemoryStore(), brokenFetchProvider{}, audit.NewService(audit.NewMemoryRepo()), log)
}

func TestTwilioStatusCallbackAlwaysAcknowledges(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := Handlers{Reconciler: testReconciler()}
	r := gin.New()
	r.POST("/webhooks/twilio/status", h.TwilioStatusCallback)

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status?call_ref=junk", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Reconciliation fails internally (provider fetch error), but the
	// provider still gets a success acknowledgement.
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestDialStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{calls.ErrInvalidArgument, http.StatusBadRequest},
		{calls.ErrCallerCannotDialSelf, http.StatusBadRequest},
		{calls.ErrNoVerifiedCallerNumber, http.StatusForbidden},
		{calls.ErrDestinationNotVerified, http.StatusForbidden},
		{calls.ErrInsufficientBalance, http.StatusPaymentRequired},
		{calls.ErrDialInProgress, http.StatusConflict},
		{telephony.ErrProviderUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := dialStatus(tc.err); got != tc.want {
			t.Errorf("dialStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestDialMessageNeverLeaksInternals(t *testing.T) {
	err := calls.ErrInsufficientBalance
	if msg := dialMessage(err); msg != err.Error() {
		t.Fatalf("known error should surface verbatim: %q", msg)
	}
	if msg := dialMessage(io.ErrUnexpectedEOF); msg != "dial failed" {
		t.Fatalf("unknown error must be masked: %q", msg)
	}
}

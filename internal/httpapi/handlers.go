package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"calling-platform/internal/audit"
	"calling-platform/internal/auth"
	"calling-platform/internal/calls"
	"calling-platform/internal/credit"
	"calling-platform/internal/pricing"
	"calling-platform/internal/rates"
	"calling-platform/internal/reporting"
	"calling-platform/internal/telephony"
	"calling-platform/internal/users"
	"calling-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth         *auth.Manager
	Users        users.Store
	Credits      *credit.Service
	Rates        *rates.Service
	Calls        calls.Store
	Orchestrator *calls.Orchestrator
	Reconciler   *calls.Reconciler
	Reporting    *reporting.Service
	Audit        *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type dialRequest struct {
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
}

// Dial places an outbound call and returns the pending session.
func (h Handlers) Dial(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	caller, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	call, err := h.Orchestrator.PlaceCall(c.Request.Context(), caller, req.PhoneNumber, req.CountryCode)
	if err != nil {
		c.AbortWithStatusJSON(dialStatus(err), gin.H{"error": dialMessage(err)})
		return
	}
	c.JSON(http.StatusCreated, call)
}

func dialStatus(err error) int {
	switch {
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, calls.ErrCallerCannotDialSelf):
		return http.StatusBadRequest
	case errors.Is(err, calls.ErrNoVerifiedCallerNumber),
		errors.Is(err, calls.ErrDestinationNotVerified):
		return http.StatusForbidden
	case errors.Is(err, calls.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, calls.ErrDialInProgress):
		return http.StatusConflict
	case errors.Is(err, telephony.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func dialMessage(err error) string {
	for _, known := range []error{
		calls.ErrInvalidArgument,
		calls.ErrCallerCannotDialSelf,
		calls.ErrNoVerifiedCallerNumber,
		calls.ErrDestinationNotVerified,
		calls.ErrInsufficientBalance,
		calls.ErrDialInProgress,
		telephony.ErrProviderUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "dial failed"
}

// ListCalls returns the caller's call history, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	caller, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	pageIndex, pageSize := pagination(c)
	filter := calls.ListFilter{
		UserID: caller.ContactID,
		Status: calls.CallStatus(c.Query("status")),
		SID:    c.Query("sid"),
	}
	rows, total, err := h.Calls.List(c.Request.Context(), filter, (pageIndex-1)*pageSize, pageSize)
	if err != nil {
		logger.FromGin(c).Error("listing calls failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing calls failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "total": total, "page": pageIndex, "page_size": pageSize})
}

// --- Webhooks ---

// TwilioStatusCallback receives provider status events.
//
// It acknowledges with 2xx once the payload is parsed, regardless of the
// reconciliation outcome: the provider cannot act on our internal
// failures and retrying will not fix a logic bug.
func (h Handlers) TwilioStatusCallback(c *gin.Context) {
	form, err := telephony.ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	callRef := c.Query("call_ref")

	if err := h.Reconciler.Reconcile(c.Request.Context(), callRef, form); err != nil {
		logger.FromGin(c).Error("reconciliation failed",
			"sid", form.CallSid,
			"call_ref", callRef,
			"error", err)
	}
	c.Status(http.StatusNoContent)
}

// --- Credits ---

type topUpRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (h Handlers) GetBalance(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	bal, err := h.Credits.GetBalance(c.Request.Context(), userID)
	if errors.Is(err, credit.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no credit for user"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h Handlers) TopUp(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cr, err := h.Credits.TopUp(c.Request.Context(), userID, req.Amount, pricing.Currency(req.Currency))
	if errors.Is(err, credit.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "top up failed"})
		return
	}
	if h.Audit != nil {
		metadata := fmt.Sprintf(`{"amount":%q,"currency":%q}`, req.Amount.String(), req.Currency)
		if err := h.Audit.LogCreditTopUp(c.Request.Context(), userID, c.ClientIP(), cr.ID, metadata); err != nil {
			logger.FromGin(c).Error("audit append failed", "error", err, "credit_id", cr.ID)
		}
	}
	c.JSON(http.StatusOK, cr)
}

func (h Handlers) GetCredit(c *gin.Context) {
	id := c.Param("credit_id")
	cr, err := h.Credits.GetByID(c.Request.Context(), id)
	if errors.Is(err, credit.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "credit not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credit lookup failed"})
		return
	}
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if cr.UsedBy != userID && role != "admin" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, cr)
}

// --- Admin: call rates ---

type upsertRateRequest struct {
	FromCountryCode string `json:"from_country_code"`
	ToCountryCode   string `json:"to_country_code"`
	FromCountryName string `json:"from_country_name"`
	ToCountryName   string `json:"to_country_name"`

	Duration     int             `json:"duration"`
	DurationUnit string          `json:"duration_unit"`
	Price        decimal.Decimal `json:"price"`
	Tax          decimal.Decimal `json:"tax"`
	Currency     string          `json:"currency"`
}

func (h Handlers) UpsertCallRate(c *gin.Context) {
	adminID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req upsertRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rate, err := h.Rates.Upsert(c.Request.Context(), rates.UpsertParams{
		FromCountryCode: req.FromCountryCode,
		ToCountryCode:   req.ToCountryCode,
		FromCountryName: req.FromCountryName,
		ToCountryName:   req.ToCountryName,
		Detail: pricing.CallRateDetail{
			Duration:     req.Duration,
			DurationUnit: pricing.DurationUnit(req.DurationUnit),
			Price:        req.Price,
			Tax:          req.Tax,
			Currency:     pricing.Currency(req.Currency),
		},
		AdminID: adminID,
	})
	if errors.Is(err, rates.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate upsert failed"})
		return
	}
	h.auditRateChange(c, adminID, rate.ID, "call rate upserted")
	c.JSON(http.StatusOK, rate)
}

func (h Handlers) auditRateChange(c *gin.Context, adminID, rateID, message string) {
	if h.Audit == nil {
		return
	}
	role, _ := auth.Role(c.Request.Context())
	metadata := fmt.Sprintf(`{"call_rate_id":%q}`, rateID)
	if err := h.Audit.LogRateChange(c.Request.Context(), adminID, role, c.ClientIP(), rateID, message, metadata); err != nil {
		logger.FromGin(c).Error("audit append failed", "error", err, "call_rate_id", rateID)
	}
}

func (h Handlers) ListCallRates(c *gin.Context) {
	pageIndex, pageSize := pagination(c)
	filter := rates.ListFilter{
		FromCountryCode: c.Query("from_country_code"),
		ToCountryCode:   c.Query("to_country_code"),
		FromCountryName: c.Query("from_country_name"),
		ToCountryName:   c.Query("to_country_name"),
	}
	rows, total, err := h.Rates.List(c.Request.Context(), filter, pageIndex, pageSize)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing rates failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_rates": rows, "total": total, "page": pageIndex, "page_size": pageSize})
}

func (h Handlers) GetCallRate(c *gin.Context) {
	rate, err := h.Rates.GetByID(c.Request.Context(), c.Param("rate_id"))
	if errors.Is(err, rates.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "rate not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (h Handlers) DeleteCallRate(c *gin.Context) {
	adminID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	rate, err := h.Rates.Delete(c.Request.Context(), c.Param("rate_id"), adminID)
	if errors.Is(err, rates.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "rate not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate delete failed"})
		return
	}
	h.auditRateChange(c, adminID, rate.ID, "call rate deleted")
	c.JSON(http.StatusOK, rate)
}

// --- Reports ---

func (h Handlers) CallsSummary(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	caller, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	rng, err := timeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID: caller.ContactID,
		Range:  rng,
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendSummary(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	caller, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	rng, err := timeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Reporting.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		UserID: caller.ContactID,
		Range:  rng,
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func pagination(c *gin.Context) (pageIndex, pageSize int) {
	pageIndex, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if pageIndex < 1 {
		pageIndex = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return pageIndex, pageSize
}

func timeRange(c *gin.Context) (reporting.TimeRange, error) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return reporting.TimeRange{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return reporting.TimeRange{}, errors.New("to must be RFC3339")
	}
	return reporting.TimeRange{From: from, To: to}, nil
}

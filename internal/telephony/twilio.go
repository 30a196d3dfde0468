package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"calling-platform/internal/config"
	"calling-platform/internal/monitoring"

	"github.com/shopspring/decimal"
)

// TwilioProvider talks to the Twilio REST API directly.
// There is no Twilio SDK dependency; the three endpoints we need are
// plain authenticated REST calls.
type TwilioProvider struct {
	accountSID string
	authToken  string

	apiBase     string
	pricingBase string

	httpClient *http.Client
}

const (
	twilioAPIBase     = "https://api.twilio.com"
	twilioPricingBase = "https://pricing.twilio.com"

	// twilioTimeLayout is RFC 2822 as emitted by the calls resource.
	twilioTimeLayout = "Mon, 02 Jan 2006 15:04:05 -0700"
)

func NewTwilioProvider(cfg config.TwilioConfig) (*TwilioProvider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("telephony: twilio credentials are required")
	}
	return &TwilioProvider{
		accountSID:  cfg.AccountSID,
		authToken:   cfg.AuthToken,
		apiBase:     twilioAPIBase,
		pricingBase: twilioPricingBase,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (p *TwilioProvider) Name() string { return "TWILIO" }

type twilioCall struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	To        string `json:"to"`
	From      string `json:"from"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Twiml", RenderSayResponse("Hello!"))
	form.Set("StatusCallback", req.StatusCallbackURL)
	form.Set("StatusCallbackMethod", http.MethodPost)
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.apiBase, p.accountSID)

	var out twilioCall
	if err := p.do(ctx, "place_call", http.MethodPost, endpoint, strings.NewReader(form.Encode()), true, &out); err != nil {
		return PlaceCallResult{}, err
	}
	if out.Sid == "" {
		return PlaceCallResult{}, fmt.Errorf("%w: originate returned no call sid", ErrProviderUnavailable)
	}
	return PlaceCallResult{ProviderCallID: out.Sid, Status: out.Status}, nil
}

func (p *TwilioProvider) FetchCall(ctx context.Context, providerCallID string) (CallDetail, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		p.apiBase, p.accountSID, url.PathEscape(providerCallID))

	var out twilioCall
	if err := p.do(ctx, "fetch_call", http.MethodGet, endpoint, nil, false, &out); err != nil {
		return CallDetail{}, err
	}

	detail := CallDetail{
		ProviderCallID: out.Sid,
		Status:         out.Status,
		To:             out.To,
		From:           out.From,
	}
	if t, err := time.Parse(twilioTimeLayout, out.StartTime); err == nil {
		detail.StartTime = &t
	}
	if t, err := time.Parse(twilioTimeLayout, out.EndTime); err == nil {
		detail.EndTime = &t
	}
	return detail, nil
}

type twilioVoicePrice struct {
	URL                string `json:"url"`
	PriceUnit          string `json:"price_unit"`
	OutboundCallPrices []struct {
		CurrentPrice string `json:"current_price"`
		BasePrice    string `json:"base_price"`
	} `json:"outbound_call_prices"`
}

func (p *TwilioProvider) LookupOutboundPrice(ctx context.Context, fromNumber, toNumber string) (OutboundPrice, error) {
	endpoint := fmt.Sprintf("%s/v2/Voice/Numbers/%s?OriginationNumber=%s",
		p.pricingBase, url.PathEscape(toNumber), url.QueryEscape(fromNumber))

	var out twilioVoicePrice
	if err := p.do(ctx, "lookup_price", http.MethodGet, endpoint, nil, false, &out); err != nil {
		return OutboundPrice{}, err
	}
	if out.URL == "" || len(out.OutboundCallPrices) == 0 {
		return OutboundPrice{}, fmt.Errorf("%w: no outbound price for %s", ErrProviderUnavailable, toNumber)
	}

	price := decimal.Zero
	if raw := out.OutboundCallPrices[0].CurrentPrice; raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return OutboundPrice{}, fmt.Errorf("%w: bad price %q", ErrProviderUnavailable, raw)
		}
		price = d
	}

	currency := out.PriceUnit
	if currency == "" {
		currency = "USD"
	}
	return OutboundPrice{Price: price, Currency: strings.ToUpper(currency)}, nil
}

func (p *TwilioProvider) do(ctx context.Context, op, method, endpoint string, body io.Reader, form bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	if form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		monitoring.RecordProviderRequest(p.Name(), op, "error", time.Since(start))
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	monitoring.RecordProviderRequest(p.Name(), op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrProviderUnavailable, method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrProviderUnavailable, err)
		}
	}
	return nil
}

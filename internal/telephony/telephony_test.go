package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestIsTerminalStatus(t *testing.T) {
	terminal := []string{StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled}
	for _, s := range terminal {
		if !IsTerminalStatus(s) {
			t.Fatalf("expected %q terminal", s)
		}
	}
	nonTerminal := []string{StatusQueued, StatusInitiated, StatusRinging, StatusAnswered, StatusInProgress, ""}
	for _, s := range nonTerminal {
		if IsTerminalStatus(s) {
			t.Fatalf("expected %q non-terminal", s)
		}
	}
}

func TestRenderSayResponse(t *testing.T) {
	got := RenderSayResponse("Hello!")
	if got != "<Response><Say>Hello!</Say></Response>" {
		t.Fatalf("unexpected twiml: %s", got)
	}
	// XML metacharacters must be escaped, not injected.
	got = RenderSayResponse(`<Hangup/>`)
	if strings.Contains(got, "<Hangup/>") {
		t.Fatalf("unescaped markup in twiml: %s", got)
	}
}

func TestParseStatusCallback(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	form.Set("To", "+15550001111")
	form.Set("From", "+15550002222")

	req := httptest.NewRequest("POST", "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := ParseStatusCallback(req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got.CallSid != "CA123" || got.CallStatus != "completed" {
		t.Fatalf("unexpected form: %+v", got)
	}
	if got.To != "+15550001111" || got.From != "+15550002222" {
		t.Fatalf("unexpected numbers: %+v", got)
	}
}

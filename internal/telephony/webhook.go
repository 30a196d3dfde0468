package telephony

import (
	"net/http"
	"strings"
)

// StatusCallbackForm captures the subset of voice status callback fields
// the reconciler cares about. Twilio sends
// application/x-www-form-urlencoded by default.
//
// The payload is only used to locate the call; call state is fetched
// authoritatively via Provider.FetchCall, which defends against spoofed
// or stale payloads.
type StatusCallbackForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
	Direction  string
	Timestamp  string
}

func ParseStatusCallback(r *http.Request) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, err
	}
	f := StatusCallbackForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		Direction:  strings.TrimSpace(r.PostFormValue("Direction")),
		Timestamp:  strings.TrimSpace(r.PostFormValue("Timestamp")),
	}
	return f, nil
}

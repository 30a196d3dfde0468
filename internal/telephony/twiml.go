package telephony

import (
	"encoding/xml"
	"strings"
)

// TwiML rendering for originated calls. Kept adapter-only; business
// logic never builds provider markup.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     string   `xml:"Say,omitempty"`
}

// RenderSayResponse builds the TwiML instruction played to the callee
// when the call connects.
func RenderSayResponse(message string) string {
	doc, err := xml.Marshal(twimlResponse{Say: message})
	if err != nil {
		// The struct above cannot fail to marshal; keep a safe fallback.
		return "<Response></Response>"
	}
	return strings.TrimSpace(string(doc))
}

package bcapi

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// OutcomeKind classifies the result of one logical API call after the retry
// loop has run its course.
type OutcomeKind int

const (
	// OutcomeSuccess carries a JSON body (200/201).
	OutcomeSuccess OutcomeKind = iota
	// OutcomeNoContent marks a 204 response, distinct from an empty Success.
	OutcomeNoContent
	// OutcomeNoCredential means no bearer credential is configured or
	// obtainable. This is the offline/mock-mode signal, not a failure.
	OutcomeNoCredential
	// OutcomeTerminal is a non-retryable failure (4xx other than 401) or an
	// exhausted retry budget.
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoContent:
		return "no_content"
	case OutcomeNoCredential:
		return "no_credential"
	default:
		return "terminal_failure"
	}
}

// Outcome is the value the request executor always returns for remote-service
// conditions; it never surfaces them as Go errors. Only request construction
// mistakes (malformed URL, unmarshalable body) propagate as errors.
type Outcome struct {
	Kind       OutcomeKind
	HTTPStatus int
	// Body holds the parsed JSON document on success. When a 2xx response
	// carries an unparseable body, Body is a synthesized document with a
	// rawResponse fallback marker instead of a failure.
	Body json.RawMessage
	// Excerpt is a truncated copy of the response body kept for diagnostics
	// on terminal failures.
	Excerpt string
}

// OK reports whether the outcome carries a usable body.
func (o *Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Decode unmarshals the success body into v. Non-success outcomes report
// false without touching v; so do bodies that fail to unmarshal.
func (o *Outcome) Decode(v any) bool {
	if !o.OK() {
		return false
	}
	return json.Unmarshal(o.Body, v) == nil
}

// ErrorMessage extracts the OData error message from a failure excerpt, when
// the remote service returned one.
func (o *Outcome) ErrorMessage() string {
	return gjson.Get(o.Excerpt, "error.message").String()
}

// rawFallback wraps an unparseable 2xx body the way the API contract
// promises success: the caller still gets a Success outcome, with the
// original text preserved.
type rawFallback struct {
	Success     bool   `json:"success"`
	RawResponse string `json:"rawResponse"`
}

func newRawFallbackBody(text string) json.RawMessage {
	body, _ := json.Marshal(rawFallback{Success: true, RawResponse: text})
	return body
}

// Package nlp provides the natural-language intent detection layer.
//
// The NLP layer sits between the raw inbound message and the dialogue
// router. Its sole responsibility is translation: convert a free-form
// sentence ("what's the risk score for gcl yamuna?") into a structured
// Result (intent + vessel reference + confidence) the router can act on.
//
// The layer is best-effort by contract: the router treats any error or
// low-confidence result as IntentUnknown and answers with a clarification
// prompt. Nothing here executes queries; it only classifies them.
package nlp

import (
	"context"
	"errors"
)

// ErrMalformedOutput is returned by a Provider when the model returns a
// structurally valid HTTP response whose body cannot be interpreted as a
// Result (JSON parse failure, schema violation). Callers should degrade to
// IntentUnknown rather than surfacing the error to the user.
var ErrMalformedOutput = errors.New("nlp: malformed response from model")

// Intent is the high-level category of the user's query.
type Intent string

const (
	// IntentVesselInfo asks for the data card of a single vessel
	// (risk score, position, particulars).
	IntentVesselInfo Intent = "vessel_info"
	// IntentRecommendations asks for the recommendation set of a vessel;
	// answering it requires a follow-up delivery choice.
	IntentRecommendations Intent = "recommendations"
	// IntentUnknown means the model could not determine what the user
	// wants with usable confidence.
	IntentUnknown Intent = "unknown"
)

// Confidence is the model's self-reported certainty bucket.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the structured output of one detection call.
type Result struct {
	// Intent is the detected query category.
	Intent Intent `json:"intent"`
	// VesselRef is the vessel name or identifier the model extracted from
	// the message, verbatim. Empty when none was mentioned. The router
	// resolves it through the directory; it is never trusted as canonical.
	VesselRef string `json:"vessel_ref"`
	// Confidence buckets the model's certainty. Low-confidence results are
	// downgraded to IntentUnknown before this struct reaches callers.
	Confidence Confidence `json:"confidence"`
}

// Provider classifies one message. Implementations must be safe for
// concurrent use.
type Provider interface {
	Detect(ctx context.Context, text string) (*Result, error)
}

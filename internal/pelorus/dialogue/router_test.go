package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fleetline/pelorus/internal/pelorus/audit"
	"github.com/fleetline/pelorus/internal/pelorus/directory"
	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
	"github.com/fleetline/pelorus/internal/pelorus/nlp"
	"github.com/fleetline/pelorus/internal/pelorus/ratelimit"
	"github.com/fleetline/pelorus/internal/pelorus/session"
	"github.com/fleetline/pelorus/internal/pelorus/store"
)

// --- fakes -----------------------------------------------------------------

type fakeIntents struct {
	mu      sync.Mutex
	result  *nlp.Result
	err     error
	calls   int
	lastMsg string
}

func (f *fakeIntents) Detect(_ context.Context, text string) (*nlp.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMsg = text
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &nlp.Result{Intent: nlp.IntentUnknown, Confidence: nlp.ConfidenceLow}, nil
	}
	return f.result, nil
}

type fakeFleet struct {
	vessel     *fleetdata.Vessel
	vesselErr  error
	recs       *fleetdata.RecommendationSet
	recsErr    error
	vesselRefs []string
}

func (f *fakeFleet) Vessel(_ context.Context, ref string) (*fleetdata.Vessel, error) {
	f.vesselRefs = append(f.vesselRefs, ref)
	if f.vesselErr != nil {
		return nil, f.vesselErr
	}
	return f.vessel, nil
}

func (f *fakeFleet) Recommendations(_ context.Context, id string) (*fleetdata.RecommendationSet, error) {
	if f.recsErr != nil {
		return nil, f.recsErr
	}
	if f.recs != nil {
		return f.recs, nil
	}
	return &fleetdata.RecommendationSet{VesselIdentifier: id}, nil
}

type fakeDelivery struct {
	mu    sync.Mutex
	to    string
	text  string
	err   error
	calls int
}

func (f *fakeDelivery) Deliver(_ context.Context, ownerKey, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.to = ownerKey
	f.text = text
	return f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeNotifier) Notify(_ context.Context, evt audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

type fakeRecorder struct {
	mu   sync.Mutex
	rows []store.MessageRecord
}

func (f *fakeRecorder) RecordMessage(_ context.Context, rec *store.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *rec)
	return nil
}

func (f *fakeRecorder) lastOutcome() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) == 0 {
		return ""
	}
	return f.rows[len(f.rows)-1].Outcome
}

// --- harness ---------------------------------------------------------------

type harness struct {
	router   *Router
	sessions *session.Store
	limiter  *ratelimit.Limiter
	intents  *fakeIntents
	fleet    *fakeFleet
	delivery *fakeDelivery
	notifier *fakeNotifier
	recorder *fakeRecorder
}

func newHarness() *harness {
	h := &harness{
		sessions: session.NewStore(time.Minute),
		limiter:  ratelimit.New(50, time.Hour),
		intents:  &fakeIntents{},
		fleet: &fakeFleet{
			vessel: &fleetdata.Vessel{Identifier: "9481219", Name: "GCL YAMUNA", RiskScore: 7.2},
		},
		delivery: &fakeDelivery{},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
	}
	h.router = New(Config{
		Directory: directory.New([]directory.Record{
			{Name: "GCL YAMUNA", Identifier: "9481219"},
			{Name: "GCL GANGA", Identifier: "9481220"},
		}),
		Limiter:  h.limiter,
		Sessions: h.sessions,
		Intents:  h.intents,
		Fleet:    h.fleet,
		Delivery: h.delivery,
		Notifier: h.notifier,
		Recorder: h.recorder,
	})
	return h
}

const sender = "+1 555-123-4567" // normalizes to 15551234567

// --- tests -----------------------------------------------------------------

func TestMissingSender(t *testing.T) {
	h := newHarness()
	got := h.router.HandleInbound(context.Background(), "not-a-number", "hello")
	if !strings.Contains(got, "identify your number") {
		t.Errorf("reply = %q", got)
	}
	if h.intents.calls != 0 {
		t.Error("intent detection must not run without a sender")
	}
}

func TestEmptyTextIsUnclear(t *testing.T) {
	h := newHarness()
	got := h.router.HandleInbound(context.Background(), sender, "   ")
	if !strings.Contains(got, "not sure") {
		t.Errorf("reply = %q", got)
	}
}

func TestRateLimitDenial(t *testing.T) {
	h := newHarness()
	h.limiter = ratelimit.New(2, time.Hour)
	h.router.cfg.Limiter = h.limiter
	h.intents.result = &nlp.Result{Intent: nlp.IntentVesselInfo, VesselRef: "GCL YAMUNA", Confidence: nlp.ConfidenceHigh}

	h.router.HandleInbound(context.Background(), sender, "risk score for GCL YAMUNA")
	h.router.HandleInbound(context.Background(), sender, "risk score for GCL YAMUNA")

	got := h.router.HandleInbound(context.Background(), sender, "risk score for GCL YAMUNA")
	if !strings.Contains(got, "request limit") {
		t.Errorf("reply = %q, want rate-limit message", got)
	}
	if h.intents.calls != 2 {
		t.Errorf("intent calls = %d, want 2 (denied request must stop early)", h.intents.calls)
	}
	if h.recorder.lastOutcome() != "rate_limited" {
		t.Errorf("outcome = %q, want rate_limited", h.recorder.lastOutcome())
	}
	// The denial is also surfaced to the ops room.
	if len(h.notifier.events) == 0 || h.notifier.events[0].Kind != audit.KindRateLimited {
		t.Errorf("notifier events = %+v", h.notifier.events)
	}
}

func TestIdentifierQueryResolvesByIdentifier(t *testing.T) {
	h := newHarness()
	// The classifier extracts the all-digit reference from the free text.
	h.intents.result = &nlp.Result{Intent: nlp.IntentVesselInfo, VesselRef: "9481219", Confidence: nlp.ConfidenceHigh}

	got := h.router.HandleInbound(context.Background(), sender, "Risk score for 9481219")
	if !strings.Contains(got, "GCL YAMUNA") {
		t.Errorf("reply = %q", got)
	}
	if len(h.fleet.vesselRefs) != 1 || h.fleet.vesselRefs[0] != "9481219" {
		t.Errorf("fleet refs = %v, want [9481219]", h.fleet.vesselRefs)
	}
}

func TestNameQueryResolvesFuzzily(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentVesselInfo, VesselRef: "gcl yamun", Confidence: nlp.ConfidenceHigh}

	got := h.router.HandleInbound(context.Background(), sender, "risk score for gcl yamun")
	if !strings.Contains(got, "GCL YAMUNA") {
		t.Errorf("reply = %q", got)
	}
}

func TestVesselNotFound(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentVesselInfo, VesselRef: "XYZ", Confidence: nlp.ConfidenceHigh}

	got := h.router.HandleInbound(context.Background(), sender, "risk score for XYZ")
	if !strings.Contains(got, "couldn't find a vessel") {
		t.Errorf("reply = %q", got)
	}
	if h.recorder.lastOutcome() != "not_found" {
		t.Errorf("outcome = %q, want not_found", h.recorder.lastOutcome())
	}
}

func TestUnknownIntent(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentUnknown, Confidence: nlp.ConfidenceLow}

	got := h.router.HandleInbound(context.Background(), sender, "what's the weather like")
	if !strings.Contains(got, "not sure") {
		t.Errorf("reply = %q", got)
	}
}

func TestIntentDetectionFailure(t *testing.T) {
	h := newHarness()
	h.intents.err = errors.New("model timeout")

	got := h.router.HandleInbound(context.Background(), sender, "risk score for GCL YAMUNA")
	if !strings.Contains(got, "try again in a moment") {
		t.Errorf("reply = %q", got)
	}
	if len(h.notifier.events) == 0 || h.notifier.events[0].Kind != audit.KindCollaboratorFailure {
		t.Errorf("notifier events = %+v", h.notifier.events)
	}
}

func TestFleetFailureReturnsGenericMessage(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentVesselInfo, VesselRef: "9481219", Confidence: nlp.ConfidenceHigh}
	h.fleet.vesselErr = errors.New("upstream 503")

	got := h.router.HandleInbound(context.Background(), sender, "risk score for 9481219")
	if !strings.Contains(got, "try again in a moment") {
		t.Errorf("reply = %q", got)
	}
	if h.recorder.lastOutcome() != "failed" {
		t.Errorf("outcome = %q, want failed", h.recorder.lastOutcome())
	}
}

func TestFleetNotFoundIsUserFacingNotFound(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentVesselInfo, VesselRef: "9481219", Confidence: nlp.ConfidenceHigh}
	h.fleet.vesselErr = fleetdata.ErrNotFound

	got := h.router.HandleInbound(context.Background(), sender, "risk score for 9481219")
	if !strings.Contains(got, "couldn't find a vessel") {
		t.Errorf("reply = %q", got)
	}
}

func TestRecommendationsSavesSession(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentRecommendations, VesselRef: "GCL YAMUNA", Confidence: nlp.ConfidenceHigh}
	h.fleet.recs = &fleetdata.RecommendationSet{
		VesselIdentifier: "9481219",
		Items:            []fleetdata.Recommendation{{Title: "Renew class certificate"}},
		ReportURL:        "https://example.com/r/1",
	}

	got := h.router.HandleInbound(context.Background(), sender, "recommendations for GCL YAMUNA")
	if !strings.Contains(got, "Reply with 1 or 2") {
		t.Errorf("reply = %q, want delivery prompt", got)
	}

	payload, state := h.sessions.Get("15551234567")
	if state != session.StateActive {
		t.Fatalf("session state = %v, want StateActive", state)
	}
	if payload[payloadVesselID] != "9481219" || payload[payloadReportURL] != "https://example.com/r/1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestFollowUpDownload(t *testing.T) {
	h := newHarness()
	h.sessions.Save("15551234567", map[string]any{
		payloadIntent:     "recommendations",
		payloadVesselID:   "9481219",
		payloadVesselName: "GCL YAMUNA",
		payloadReportURL:  "https://example.com/r/1",
	}, time.Minute)

	got := h.router.HandleInbound(context.Background(), sender, "1")
	if !strings.Contains(got, "https://example.com/r/1") {
		t.Errorf("reply = %q, want report link", got)
	}
	if _, state := h.sessions.Get("15551234567"); state != session.StateNone {
		t.Error("session must be cleared after a recognized follow-up")
	}
	if h.intents.calls != 0 {
		t.Error("a recognized follow-up must not trigger intent detection")
	}
}

func TestFollowUpEmailDeliversReport(t *testing.T) {
	h := newHarness()
	h.sessions.Save("15551234567", map[string]any{
		payloadIntent:     "recommendations",
		payloadVesselID:   "9481219",
		payloadVesselName: "GCL YAMUNA",
		payloadReportURL:  "https://example.com/r/1",
	}, time.Minute)

	got := h.router.HandleInbound(context.Background(), sender, "email please")
	if !strings.Contains(got, "email") {
		t.Errorf("reply = %q", got)
	}
	if h.delivery.calls != 1 || h.delivery.to != "15551234567" {
		t.Errorf("delivery = %+v", h.delivery)
	}
	if !strings.Contains(h.delivery.text, "GCL YAMUNA") {
		t.Errorf("delivered text = %q", h.delivery.text)
	}
}

func TestFollowUpDeliveryFailureStillConfirms(t *testing.T) {
	h := newHarness()
	h.delivery.err = errors.New("gateway down")
	h.sessions.Save("15551234567", map[string]any{
		payloadVesselID: "9481219",
	}, time.Minute)

	got := h.router.HandleInbound(context.Background(), sender, "2")
	if !strings.Contains(got, "email") {
		t.Errorf("reply = %q", got)
	}
}

func TestUnrecognizedFollowUpReprocessesAsNewQuery(t *testing.T) {
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentUnknown, Confidence: nlp.ConfidenceLow}
	h.sessions.Save("15551234567", map[string]any{
		payloadVesselID: "9481219",
	}, time.Minute)

	h.router.HandleInbound(context.Background(), sender, "banana")

	if _, state := h.sessions.Get("15551234567"); state != session.StateNone {
		t.Error("session must be cleared by the permissive fallback")
	}
	if h.intents.calls != 1 || h.intents.lastMsg != "banana" {
		t.Errorf("intents = %+v, want banana reprocessed as a new query", h.intents)
	}
}

func TestExpiredSessionAsksForResend(t *testing.T) {
	h := newHarness()
	h.sessions.Save("15551234567", map[string]any{payloadVesselID: "9481219"}, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)

	got := h.router.HandleInbound(context.Background(), sender, "1")
	if !strings.Contains(got, "expired") {
		t.Errorf("reply = %q", got)
	}
	if h.intents.calls != 0 {
		t.Error("expired session must stop the message, not reprocess it")
	}
}

func TestFollowUpPayloadMissingVesselDegradesToUnclear(t *testing.T) {
	h := newHarness()
	h.sessions.Save("15551234567", map[string]any{"junk": 42}, time.Minute)

	got := h.router.HandleInbound(context.Background(), sender, "1")
	if !strings.Contains(got, "not sure") {
		t.Errorf("reply = %q, want resolution-miss message", got)
	}
}

func TestFollowUpConsumesRateSlot(t *testing.T) {
	// Policy: every inbound message counts against the window, follow-ups
	// included, because the limiter runs before the session lookup.
	h := newHarness()
	h.limiter = ratelimit.New(1, time.Hour)
	h.router.cfg.Limiter = h.limiter
	h.sessions.Save("15551234567", map[string]any{payloadVesselID: "9481219"}, time.Minute)

	h.router.HandleInbound(context.Background(), sender, "1")

	got := h.router.HandleInbound(context.Background(), sender, "risk score for 9481219")
	if !strings.Contains(got, "request limit") {
		t.Errorf("reply = %q, want rate-limit message after follow-up used the slot", got)
	}
}

func TestBareIdentifierBypassesIntentDetection(t *testing.T) {
	// An all-digit message is an identifier: it resolves to the vessel card
	// directly, even when the model would have classified it as unknown.
	h := newHarness()
	h.intents.result = &nlp.Result{Intent: nlp.IntentUnknown, Confidence: nlp.ConfidenceLow}

	got := h.router.HandleInbound(context.Background(), sender, "9481219")
	if !strings.Contains(got, "GCL YAMUNA") {
		t.Errorf("reply = %q", got)
	}
	if h.intents.calls != 0 {
		t.Error("bare identifier must not consult the classifier")
	}
}

func TestBareIdentifierNotInCatalog(t *testing.T) {
	h := newHarness()

	got := h.router.HandleInbound(context.Background(), sender, "1234567")
	if !strings.Contains(got, "couldn't find a vessel") {
		t.Errorf("reply = %q", got)
	}
	if h.recorder.lastOutcome() != "not_found" {
		t.Errorf("outcome = %q, want not_found", h.recorder.lastOutcome())
	}
}

func TestMalformedModelOutputDegradesToUnclear(t *testing.T) {
	h := newHarness()
	h.intents.err = fmt.Errorf("%w: invalid character 'h'", nlp.ErrMalformedOutput)

	got := h.router.HandleInbound(context.Background(), sender, "risk score for GCL YAMUNA")
	if !strings.Contains(got, "not sure") {
		t.Errorf("reply = %q, want clarification prompt", got)
	}
	if len(h.notifier.events) != 0 {
		t.Errorf("notifier events = %+v, want none for unparseable model output", h.notifier.events)
	}
	if h.recorder.lastOutcome() != "unclear" {
		t.Errorf("outcome = %q, want unclear", h.recorder.lastOutcome())
	}
}

func TestPanicInCollaboratorDegradesToGenericFailure(t *testing.T) {
	h := newHarness()
	h.router.cfg.Intents = panickyProvider{}

	got := h.router.HandleInbound(context.Background(), sender, "hello")
	if !strings.Contains(got, "try again in a moment") {
		t.Errorf("reply = %q, want generic failure", got)
	}
}

type panickyProvider struct{}

func (panickyProvider) Detect(context.Context, string) (*nlp.Result, error) {
	panic("collaborator bug")
}

func TestClassifyFollowUp(t *testing.T) {
	tests := []struct {
		text string
		want followUpChoice
	}{
		{"1", followUpDownload},
		{"download", followUpDownload},
		{"Download it please", followUpDownload},
		{"2", followUpEmail},
		{"email", followUpEmail},
		{"send it by EMAIL", followUpEmail},
		{"banana", followUpNone},
		{"3", followUpNone},
		{"", followUpNone},
	}
	for _, tt := range tests {
		if got := classifyFollowUp(tt.text); got != tt.want {
			t.Errorf("classifyFollowUp(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

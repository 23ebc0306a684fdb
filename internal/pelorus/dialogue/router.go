// Package dialogue implements the message router, the single public entry
// point of the bot core.
//
// Every inbound message walks the same gauntlet: sender normalization →
// rate limit → session lookup → dispatch. A message is either a new query
// (intent detection, directory resolution, data fetch) or a follow-up reply
// answering a pending delivery choice. Exactly one reply is produced per
// message, and no path can leak a panic or a half-written session.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/fleetline/pelorus/common/phone"
	"github.com/fleetline/pelorus/common/redact"
	"github.com/fleetline/pelorus/common/trace"
	"github.com/fleetline/pelorus/internal/pelorus/audit"
	"github.com/fleetline/pelorus/internal/pelorus/delivery"
	"github.com/fleetline/pelorus/internal/pelorus/directory"
	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
	"github.com/fleetline/pelorus/internal/pelorus/nlp"
	"github.com/fleetline/pelorus/internal/pelorus/observability"
	"github.com/fleetline/pelorus/internal/pelorus/ratelimit"
	"github.com/fleetline/pelorus/internal/pelorus/reply"
	"github.com/fleetline/pelorus/internal/pelorus/session"
	"github.com/fleetline/pelorus/internal/pelorus/store"
)

// DefaultSessionTTL is how long a pending delivery choice stays answerable.
const DefaultSessionTTL = 5 * time.Minute

// Session payload keys. Sessions are single-slot maps; these are the fields
// a follow-up handler expects to find.
const (
	payloadIntent     = "intent"
	payloadVesselID   = "vesselIdentifier"
	payloadVesselName = "vesselName"
	payloadReportURL  = "reportURL"
)

// identifierPattern recognizes machine-issued vessel identifiers: all-digit
// strings, e.g. IMO numbers.
var identifierPattern = regexp.MustCompile(`^\d+$`)

// FleetClient is the subset of the fleet-data client the router needs.
type FleetClient interface {
	Vessel(ctx context.Context, ref string) (*fleetdata.Vessel, error)
	Recommendations(ctx context.Context, identifier string) (*fleetdata.RecommendationSet, error)
}

// Recorder appends audit-log rows. The production implementation is
// *store.Store.
type Recorder interface {
	RecordMessage(ctx context.Context, rec *store.MessageRecord) error
}

// nopRecorder is used when no store is configured (tests, dry runs).
type nopRecorder struct{}

func (nopRecorder) RecordMessage(context.Context, *store.MessageRecord) error { return nil }

// Config wires the router's collaborators. Directory, Limiter, Sessions,
// and Intents are required; the rest default to no-op implementations.
type Config struct {
	Directory *directory.Directory
	Limiter   *ratelimit.Limiter
	Sessions  *session.Store
	Intents   nlp.Provider
	Fleet     FleetClient
	Delivery  delivery.Sender
	Notifier  audit.Notifier
	Recorder  Recorder

	// SessionTTL bounds how long a follow-up choice stays open. Defaults
	// to DefaultSessionTTL when zero.
	SessionTTL time.Duration
}

// Router dispatches inbound messages. Safe for concurrent use: all mutable
// state lives in the injected stores.
type Router struct {
	cfg Config
}

// New creates a Router. Optional collaborators are defaulted here so the
// hot path never nil-checks.
func New(cfg Config) *Router {
	if cfg.Delivery == nil {
		cfg.Delivery = delivery.NopSender{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = audit.NopNotifier{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Router{cfg: cfg}
}

// HandleInbound processes one inbound message and returns the single reply
// to send back. It never panics outward and never returns an empty string.
func (r *Router) HandleInbound(ctx context.Context, senderRaw, text string) (out string) {
	if trace.FromContext(ctx) == "" {
		ctx = trace.WithTraceID(ctx, trace.GenerateID())
	}
	log := observability.WithTrace(ctx)

	// Programming invariants degrade to the generic failure reply; the
	// router's caller is a transport handler that can do nothing useful
	// with a panic.
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("router panic recovered", "panic", rec)
			out = reply.GenericFailure()
		}
	}()

	ownerKey := phone.NormalizeOwnerKey(senderRaw)
	if ownerKey == "" {
		log.Info("inbound message without usable sender")
		r.record(ctx, "", "", "", "missing_sender")
		return reply.MissingSender()
	}
	log = log.With("sender", redact.MaskOwnerKey(ownerKey))

	text = strings.TrimSpace(text)
	if text == "" {
		r.record(ctx, ownerKey, "", "", "unclear")
		return reply.Unclear()
	}

	// Every inbound message consumes one rate-limit slot, follow-ups
	// included: the limiter runs before we know what the message is.
	res := r.cfg.Limiter.Check(ownerKey)
	if !res.Allowed {
		log.Info("rate limit exceeded", "reset_at", res.ResetAt)
		r.cfg.Notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindRateLimited,
			Subject: redact.MaskOwnerKey(ownerKey),
			Message: fmt.Sprintf("request cap reached, window resets %s", res.ResetAt.UTC().Format(time.RFC3339)),
		})
		r.record(ctx, ownerKey, "", "", "rate_limited")
		return reply.RateLimited(res.ResetAt)
	}

	payload, state := r.cfg.Sessions.Get(ownerKey)
	switch state {
	case session.StateExpired:
		log.Info("session expired before follow-up arrived")
		r.record(ctx, ownerKey, "", "", "session_expired")
		return reply.SessionExpired()

	case session.StateActive:
		switch classifyFollowUp(text) {
		case followUpDownload:
			r.cfg.Sessions.Clear(ownerKey)
			return r.handleDownload(ctx, log, ownerKey, payload)
		case followUpEmail:
			r.cfg.Sessions.Clear(ownerKey)
			return r.handleEmail(ctx, log, ownerKey, payload)
		default:
			// Permissive fallback: an unrecognized reply abandons the
			// pending choice and is reprocessed as a brand-new query.
			r.cfg.Sessions.Clear(ownerKey)
			log.Debug("unrecognized follow-up, reprocessing as new query")
		}
	}

	return r.handleNewQuery(ctx, log, ownerKey, text)
}

// handleNewQuery runs the intent → directory → data pipeline.
func (r *Router) handleNewQuery(ctx context.Context, log *slog.Logger, ownerKey, text string) string {
	// A bare all-digit message is a vessel identifier. It resolves directly
	// and defaults to the vessel card without consulting the model.
	if identifierPattern.MatchString(text) {
		rec, ok := r.cfg.Directory.FindByIdentifier(text)
		if !ok {
			r.record(ctx, ownerKey, string(nlp.IntentVesselInfo), "", "not_found")
			return reply.VesselNotFound(text)
		}
		return r.handleVesselInfo(ctx, log.With("vessel", rec.Identifier), ownerKey, rec)
	}

	res, err := r.cfg.Intents.Detect(ctx, text)
	if errors.Is(err, nlp.ErrMalformedOutput) {
		// Unparseable model output is treated as "could not classify", not
		// as a failure the user should see.
		log.Warn("intent detection returned malformed output", "err", err)
		r.record(ctx, ownerKey, string(nlp.IntentUnknown), "", "unclear")
		return reply.Unclear()
	}
	if err != nil {
		log.Error("intent detection failed", "err", err)
		r.notifyFailure(ctx, "nlp", err)
		r.record(ctx, ownerKey, "", "", "failed")
		return reply.GenericFailure()
	}

	if res.Intent == nlp.IntentUnknown {
		r.record(ctx, ownerKey, string(res.Intent), "", "unclear")
		return reply.Unclear()
	}

	ref := strings.TrimSpace(res.VesselRef)
	rec, ok := r.resolveVessel(ref)
	if !ok {
		log.Info("vessel not resolved", "intent", res.Intent)
		r.record(ctx, ownerKey, string(res.Intent), "", "not_found")
		return reply.VesselNotFound(ref)
	}
	log = log.With("vessel", rec.Identifier)

	switch res.Intent {
	case nlp.IntentVesselInfo:
		return r.handleVesselInfo(ctx, log, ownerKey, rec)
	case nlp.IntentRecommendations:
		return r.handleRecommendations(ctx, log, ownerKey, rec)
	default:
		r.record(ctx, ownerKey, string(res.Intent), rec.Identifier, "unclear")
		return reply.Unclear()
	}
}

// resolveVessel maps a free-text vessel reference to a catalog record.
// All-digit references are identifiers and only match exactly; everything
// else goes through the name matcher.
func (r *Router) resolveVessel(ref string) (directory.Record, bool) {
	if ref == "" {
		return directory.Record{}, false
	}
	if identifierPattern.MatchString(ref) {
		return r.cfg.Directory.FindByIdentifier(ref)
	}
	return r.cfg.Directory.FindByName(ref)
}

func (r *Router) handleVesselInfo(ctx context.Context, log *slog.Logger, ownerKey string, rec directory.Record) string {
	v, err := r.cfg.Fleet.Vessel(ctx, rec.Identifier)
	switch {
	case errors.Is(err, fleetdata.ErrNotFound):
		log.Info("vessel data not found upstream")
		r.record(ctx, ownerKey, string(nlp.IntentVesselInfo), rec.Identifier, "not_found")
		return reply.VesselNotFound(rec.Name)
	case err != nil:
		log.Error("vessel data fetch failed", "err", err)
		r.notifyFailure(ctx, "fleetdata", err)
		r.record(ctx, ownerKey, string(nlp.IntentVesselInfo), rec.Identifier, "failed")
		return reply.GenericFailure()
	}

	r.record(ctx, ownerKey, string(nlp.IntentVesselInfo), rec.Identifier, "answered")
	return reply.VesselInfo(v)
}

func (r *Router) handleRecommendations(ctx context.Context, log *slog.Logger, ownerKey string, rec directory.Record) string {
	set, err := r.cfg.Fleet.Recommendations(ctx, rec.Identifier)
	switch {
	case errors.Is(err, fleetdata.ErrNotFound):
		log.Info("no recommendations upstream")
		r.record(ctx, ownerKey, string(nlp.IntentRecommendations), rec.Identifier, "not_found")
		return reply.VesselNotFound(rec.Name)
	case err != nil:
		log.Error("recommendations fetch failed", "err", err)
		r.notifyFailure(ctx, "fleetdata", err)
		r.record(ctx, ownerKey, string(nlp.IntentRecommendations), rec.Identifier, "failed")
		return reply.GenericFailure()
	}

	// Persist the follow-up state before replying so the delivery choice
	// can be answered. Single-key overwrite keeps this atomic.
	r.cfg.Sessions.Save(ownerKey, map[string]any{
		payloadIntent:     string(nlp.IntentRecommendations),
		payloadVesselID:   rec.Identifier,
		payloadVesselName: rec.Name,
		payloadReportURL:  set.ReportURL,
	}, r.cfg.SessionTTL)

	r.record(ctx, ownerKey, string(nlp.IntentRecommendations), rec.Identifier, "follow_up_saved")
	return reply.RecommendationsPrompt(rec.Name, len(set.Items))
}

// handleDownload answers the "1 / download" follow-up using the stored
// payload. A payload missing its vessel identifier is treated as a
// resolution miss, not a crash.
func (r *Router) handleDownload(ctx context.Context, log *slog.Logger, ownerKey string, payload map[string]any) string {
	vesselID, ok := payload[payloadVesselID].(string)
	if !ok || vesselID == "" {
		log.Warn("follow-up payload missing vessel identifier")
		r.record(ctx, ownerKey, "", "", "unclear")
		return reply.Unclear()
	}

	link, _ := payload[payloadReportURL].(string)
	log.Info("follow-up answered", "choice", "download", "vessel", vesselID)
	r.record(ctx, ownerKey, "follow_up_download", vesselID, "answered")
	return reply.DownloadReady(link)
}

// handleEmail answers the "2 / email" follow-up. The actual send goes over
// the push channel fire-and-forget; a delivery failure is an ops problem,
// not a reason to tell the user the interaction failed.
func (r *Router) handleEmail(ctx context.Context, log *slog.Logger, ownerKey string, payload map[string]any) string {
	vesselID, ok := payload[payloadVesselID].(string)
	if !ok || vesselID == "" {
		log.Warn("follow-up payload missing vessel identifier")
		r.record(ctx, ownerKey, "", "", "unclear")
		return reply.Unclear()
	}

	vesselName, _ := payload[payloadVesselName].(string)
	link, _ := payload[payloadReportURL].(string)

	text := fmt.Sprintf("Your recommendations report for %s is ready.", vesselName)
	if link != "" {
		text += " " + link
	}
	if err := r.cfg.Delivery.Deliver(ctx, ownerKey, text); err != nil {
		log.Warn("outbound delivery failed", "err", err)
		r.notifyFailure(ctx, "delivery", err)
	}

	log.Info("follow-up answered", "choice", "email", "vessel", vesselID)
	r.record(ctx, ownerKey, "follow_up_email", vesselID, "answered")
	return reply.EmailQueued()
}

// record appends an audit-log row best-effort.
func (r *Router) record(ctx context.Context, ownerKey, intent, vesselID, outcome string) {
	err := r.cfg.Recorder.RecordMessage(ctx, &store.MessageRecord{
		TraceID:          trace.FromContext(ctx),
		SenderMasked:     redact.MaskOwnerKey(ownerKey),
		Intent:           intent,
		VesselIdentifier: vesselID,
		Outcome:          outcome,
	})
	if err != nil {
		slog.Warn("audit log write failed", "err", err)
	}
}

func (r *Router) notifyFailure(ctx context.Context, collaborator string, err error) {
	r.cfg.Notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindCollaboratorFailure,
		Subject: collaborator,
		Message: err.Error(),
	})
}

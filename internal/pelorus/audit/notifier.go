// Package audit posts concise summaries of notable runtime events to an ops
// room so operators can watch the bot without tailing the SQLite audit log.
//
// Supported event kinds:
//   - KindRateLimited: a sender hit the hourly request cap
//   - KindCollaboratorFailure: an external API call failed after retries
//   - KindCatalogFallback: the vessel catalog loaded from a fallback source
//
// Events include the originating trace ID so an operator can correlate the
// notice with the full audit-log row.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetline/pelorus/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindRateLimited         Kind = "rate.limited"
	KindCollaboratorFailure Kind = "collaborator.failure"
	KindCatalogFallback     Kind = "catalog.fallback"
)

// Event carries the data the notifier formats and sends.
type Event struct {
	// Kind identifies the type of event.
	Kind Kind
	// Subject is the primary thing affected (masked sender, collaborator name).
	Subject string
	// Message is a human-friendly description of what happened.
	Message string
	// TraceID ties the notice back to the audit-log row. When empty the
	// value is taken from the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier sends ops-room notifications. Implementations must not block the
// caller beyond a short timeout; send failures are logged, not propagated.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of the Matrix client needed by MatrixNotifier.
// Defined as an interface so the notifier can be unit-tested independently.
type Sender interface {
	SendNotice(ctx context.Context, roomID, message string) error
}

// MatrixNotifier posts formatted notices to a Matrix ops room.
type MatrixNotifier struct {
	sender Sender
	roomID string
}

// NewMatrixNotifier creates a MatrixNotifier that posts to roomID via sender.
func NewMatrixNotifier(sender Sender, roomID string) *MatrixNotifier {
	return &MatrixNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt and posts it. Errors are logged at WARN level.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}

	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	msg := fmt.Sprintf("⚠ [%s] %s", evt.Kind, evt.Message)
	if evt.Subject != "" {
		msg = fmt.Sprintf("⚠ [%s] %s — %s", evt.Kind, evt.Subject, evt.Message)
	}
	if tid != "" {
		msg = fmt.Sprintf("%s\n  trace: %s", msg, tid)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := n.sender.SendNotice(sendCtx, n.roomID, msg); err != nil {
		slog.Warn("ops notification failed", "kind", evt.Kind, "err", err)
	}
}

// NopNotifier discards events. Used when no ops room is configured.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, Event) {}

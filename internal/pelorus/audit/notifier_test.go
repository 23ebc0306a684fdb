package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fleetline/pelorus/common/trace"
)

type fakeSender struct {
	roomID  string
	message string
	err     error
	calls   int
}

func (f *fakeSender) SendNotice(_ context.Context, roomID, message string) error {
	f.calls++
	f.roomID = roomID
	f.message = message
	return f.err
}

func TestNotifyFormatsEvent(t *testing.T) {
	sender := &fakeSender{}
	n := NewMatrixNotifier(sender, "!ops:example.com")

	n.Notify(context.Background(), Event{
		Kind:    KindCollaboratorFailure,
		Subject: "fleetdata",
		Message: "vessel fetch failed after 3 attempts",
		TraceID: "t_123",
	})

	if sender.roomID != "!ops:example.com" {
		t.Errorf("roomID = %q", sender.roomID)
	}
	for _, want := range []string{"collaborator.failure", "fleetdata", "t_123"} {
		if !strings.Contains(sender.message, want) {
			t.Errorf("message missing %q:\n%s", want, sender.message)
		}
	}
}

func TestNotifyTakesTraceFromContext(t *testing.T) {
	sender := &fakeSender{}
	n := NewMatrixNotifier(sender, "!ops:example.com")

	ctx := trace.WithTraceID(context.Background(), "t_from_ctx")
	n.Notify(ctx, Event{Kind: KindRateLimited, Message: "cap reached"})

	if !strings.Contains(sender.message, "t_from_ctx") {
		t.Errorf("message missing context trace ID:\n%s", sender.message)
	}
}

func TestNotifyWithoutRoomIsNoop(t *testing.T) {
	sender := &fakeSender{}
	n := NewMatrixNotifier(sender, "")
	n.Notify(context.Background(), Event{Kind: KindRateLimited, Message: "x"})
	if sender.calls != 0 {
		t.Errorf("calls = %d, want 0", sender.calls)
	}
}

func TestNotifySwallowsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("homeserver down")}
	n := NewMatrixNotifier(sender, "!ops:example.com")
	// Must not panic or propagate.
	n.Notify(context.Background(), Event{Kind: KindCatalogFallback, Message: "using snapshot"})
	if sender.calls != 1 {
		t.Errorf("calls = %d, want 1", sender.calls)
	}
}

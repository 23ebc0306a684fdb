// Package delivery is the outbound push channel (the deliverMessage
// collaborator): fire-and-forget notifications sent outside the
// request-response cycle, e.g. the emailed report confirmation.
//
// Delivery failures never reach the user path; implementations log and
// swallow. The reply the user sees for the current message is composed by
// the router regardless of whether the push went out.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fleetline/pelorus/common/redact"
)

// Sender delivers one outbound message to an owner. Implementations must be
// safe for concurrent use and must not block longer than a short timeout.
type Sender interface {
	Deliver(ctx context.Context, ownerKey, text string) error
}

const defaultTimeout = 10 * time.Second

// PushConfig configures the HTTP push sender.
type PushConfig struct {
	// Endpoint receives POST {"to": ownerKey, "text": text}. Required.
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout is the per-request timeout. Defaults to 10 s.
	Timeout time.Duration
}

// PushSender posts messages to a gateway HTTP endpoint.
type PushSender struct {
	cfg  PushConfig
	http *http.Client
}

// NewPushSender creates a PushSender for the given configuration.
func NewPushSender(cfg PushConfig) *PushSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &PushSender{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type pushRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Deliver posts the message to the gateway. The error return is for tests
// and callers who care; the router calls this fire-and-forget and only logs.
func (s *PushSender) Deliver(ctx context.Context, ownerKey, text string) error {
	payload, err := json.Marshal(pushRequest{To: ownerKey, Text: text})
	if err != nil {
		return fmt.Errorf("delivery: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.Endpoint, "/"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery: gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// NopSender discards messages. Used when no push endpoint is configured so
// call sites do not have to nil-check.
type NopSender struct{}

// Deliver logs the drop at debug level and succeeds.
func (NopSender) Deliver(_ context.Context, ownerKey, _ string) error {
	slog.Debug("delivery disabled, dropping outbound message",
		"owner", redact.MaskOwnerKey(ownerKey))
	return nil
}

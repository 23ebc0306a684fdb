// Package webhook is the inbound HTTP shell around the dialogue router.
//
// The upstream messaging gateway POSTs each user message to /inbound and
// relays the returned reply. The handler does no dialogue work itself: it
// parses the envelope, stamps a trace ID, and forwards to the single router
// entry point.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fleetline/pelorus/common/trace"
)

// maxBodyBytes caps inbound request bodies; user messages are short and an
// oversized payload is either a bug or abuse.
const maxBodyBytes = 64 * 1024

// MessageHandler is the router entry point the server forwards to.
type MessageHandler func(ctx context.Context, senderRaw, text string) string

// inboundRequest is the JSON envelope posted by the messaging gateway.
type inboundRequest struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type inboundResponse struct {
	Reply   string `json:"reply"`
	TraceID string `json:"trace_id"`
}

// Server hosts the inbound webhook and health endpoints.
type Server struct {
	addr    string
	handler MessageHandler
	httpSrv *http.Server
}

// New creates a Server listening on addr once Start is called.
func New(addr string, handler MessageHandler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Routes returns the configured mux; split out so tests can drive the
// handlers without binding a port.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", s.handleInbound)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start begins serving in a background goroutine. Errors other than a clean
// shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("webhook server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inboundRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	traceID := trace.GenerateID()
	ctx := trace.WithTraceID(r.Context(), traceID)

	replyText := s.handler(ctx, req.From, req.Text)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(inboundResponse{Reply: replyText, TraceID: traceID}); err != nil {
		slog.Warn("failed to write inbound response", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

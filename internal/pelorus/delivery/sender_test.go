package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushSenderDeliver(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer push-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewPushSender(PushConfig{Endpoint: srv.URL, APIKey: "push-key"})
	if err := s.Deliver(context.Background(), "15551234567", "your report is ready"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.To != "15551234567" || got.Text != "your report is ready" {
		t.Errorf("request = %+v", got)
	}
}

func TestPushSenderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewPushSender(PushConfig{Endpoint: srv.URL})
	if err := s.Deliver(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error for 500")
	}
}

func TestNopSender(t *testing.T) {
	if err := (NopSender{}).Deliver(context.Background(), "1", "x"); err != nil {
		t.Fatalf("NopSender.Deliver: %v", err)
	}
}

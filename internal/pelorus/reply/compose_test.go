package reply

import (
	"strings"
	"testing"
	"time"

	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
)

func TestRateLimitedMentionsResetTime(t *testing.T) {
	resetAt := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	got := RateLimited(resetAt)
	if !strings.Contains(got, "14:30 UTC") {
		t.Errorf("RateLimited = %q, want reset time mentioned", got)
	}
}

func TestVesselNotFound(t *testing.T) {
	if got := VesselNotFound("GCL YMN"); !strings.Contains(got, "GCL YMN") {
		t.Errorf("VesselNotFound = %q, want query echoed", got)
	}
	if got := VesselNotFound("  "); strings.Contains(got, `""`) {
		t.Errorf("VesselNotFound empty = %q, should not echo empty quotes", got)
	}
}

func TestVesselInfo(t *testing.T) {
	v := &fleetdata.Vessel{
		Identifier: "9481219",
		Name:       "GCL YAMUNA",
		RiskScore:  7.2,
		RiskLabel:  "elevated",
		Flag:       "IN",
	}
	got := VesselInfo(v)
	for _, want := range []string{"GCL YAMUNA", "9481219", "7.2", "elevated", "IN"} {
		if !strings.Contains(got, want) {
			t.Errorf("VesselInfo missing %q in:\n%s", want, got)
		}
	}
	// Optional fields are omitted, not rendered empty.
	if strings.Contains(got, "Position") {
		t.Errorf("VesselInfo rendered empty position:\n%s", got)
	}
}

func TestRecommendationsPromptOffersBothChoices(t *testing.T) {
	got := RecommendationsPrompt("GCL YAMUNA", 3)
	for _, want := range []string{"3", "GCL YAMUNA", "1.", "2.", "Download", "Email"} {
		if !strings.Contains(got, want) {
			t.Errorf("RecommendationsPrompt missing %q in:\n%s", want, got)
		}
	}
}

func TestDownloadReady(t *testing.T) {
	if got := DownloadReady("https://example.com/r/1"); !strings.Contains(got, "https://example.com/r/1") {
		t.Errorf("DownloadReady = %q", got)
	}
	if got := DownloadReady(""); !strings.Contains(got, "shortly") {
		t.Errorf("DownloadReady without link = %q", got)
	}
}

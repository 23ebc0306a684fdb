// Package reply composes every user-facing message. Pure formatting, no
// I/O; keeping the strings in one place makes the router tests independent
// of wording and the wording reviewable in one file.
package reply

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
)

// MissingSender is returned when the inbound message carries no usable
// sender number.
func MissingSender() string {
	return "Sorry, I couldn't identify your number. Please contact support if this keeps happening."
}

// RateLimited tells the user to come back after the window resets.
func RateLimited(resetAt time.Time) string {
	return fmt.Sprintf("You've reached the hourly request limit. Please try again after %s.",
		resetAt.UTC().Format("15:04 UTC"))
}

// SessionExpired asks the user to restart an interrupted multi-step query.
func SessionExpired() string {
	return "That conversation has expired. Please resend your query and I'll start over."
}

// Unclear is the resolution-miss reply for unrecognized intent.
func Unclear() string {
	return "I'm not sure what you're asking. Try something like \"Risk score for GCL YAMUNA\" or \"Recommendations for 9481219\"."
}

// VesselNotFound reports a failed directory lookup.
func VesselNotFound(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "I couldn't tell which vessel you mean. Please include the vessel name or its identifier."
	}
	return fmt.Sprintf("I couldn't find a vessel matching %q. Please check the name or identifier and try again.", query)
}

// GenericFailure is the collaborator-failure reply. Deliberately vague: the
// cause is in the logs, not in the user's chat.
func GenericFailure() string {
	return "Something went wrong on my side. Please try again in a moment."
}

// VesselInfo renders the data card for one vessel.
func VesselInfo(v *fleetdata.Vessel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", v.Name, v.Identifier)
	if v.RiskLabel != "" {
		fmt.Fprintf(&b, "Risk score: %.1f (%s)\n", v.RiskScore, v.RiskLabel)
	} else {
		fmt.Fprintf(&b, "Risk score: %.1f\n", v.RiskScore)
	}
	if v.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", v.Type)
	}
	if v.Flag != "" {
		fmt.Fprintf(&b, "Flag: %s\n", v.Flag)
	}
	if v.Position != "" {
		fmt.Fprintf(&b, "Last position: %s\n", v.Position)
	}
	if v.UpdatedAt != "" {
		fmt.Fprintf(&b, "Updated: %s\n", v.UpdatedAt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RecommendationsPrompt summarizes the recommendation set and poses the
// delivery choice that the follow-up reply answers.
func RecommendationsPrompt(vesselName string, count int) string {
	return fmt.Sprintf("I found %d recommendation(s) for %s. How would you like to receive the report?\n\n1. Download link\n2. Email\n\nReply with 1 or 2.",
		count, vesselName)
}

// DownloadReady confirms the download follow-up.
func DownloadReady(link string) string {
	if link == "" {
		return "Your report is being prepared. You'll receive a download link shortly."
	}
	return "Here's your report: " + link
}

// EmailQueued confirms the email follow-up.
func EmailQueued() string {
	return "Done — the report is on its way to your registered email address."
}

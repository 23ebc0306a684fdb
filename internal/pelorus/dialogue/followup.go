package dialogue

import "strings"

// followUpChoice classifies a reply to the pending delivery prompt.
type followUpChoice int

const (
	followUpNone followUpChoice = iota
	followUpDownload
	followUpEmail
)

// classifyFollowUp recognizes the delivery-choice tokens: "1", "download",
// or any text containing "download" selects download; "2", "email", or any
// text containing "email" selects email. Bare numbers win over substring
// scanning so "1" never depends on prompt wording.
func classifyFollowUp(text string) followUpChoice {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "1", "download":
		return followUpDownload
	case "2", "email":
		return followUpEmail
	}
	if strings.Contains(t, "download") {
		return followUpDownload
	}
	if strings.Contains(t, "email") {
		return followUpEmail
	}
	return followUpNone
}

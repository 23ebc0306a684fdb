// Package redact keeps personal data and credentials out of log output.
//
// Pelorus handles phone numbers on every request. Log lines and audit rows
// must never carry a full number; MaskOwnerKey produces the short form used
// everywhere a sender has to be mentioned. String handles the API-key case
// for collaborator error messages.
//
// Redaction is best-effort string replacement. It does not excuse logging
// sensitive values in the first place.
package redact

import "strings"

const placeholder = "[REDACTED]"

// MaskOwnerKey returns a masked rendering of a digits-only owner key that
// keeps the last four digits for correlation, e.g. "*******8900".
// Keys of four digits or fewer are masked entirely.
func MaskOwnerKey(key string) string {
	if key == "" {
		return ""
	}
	const visible = 4
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-visible) + key[len(key)-visible:]
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped so common
// substrings are not clobbered.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

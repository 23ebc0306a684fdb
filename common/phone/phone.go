// Package phone normalizes phone numbers into owner keys.
//
// Every subsystem that keys state by sender (session store, rate limiter,
// audit log) must agree on a single canonical form, otherwise the same user
// appears under several keys depending on how the upstream channel formatted
// the number ("+1 234-567-8900" vs "12345678900").
package phone

import "strings"

// NormalizeOwnerKey strips every non-digit character from raw and returns
// the digits-only owner key. An empty result means the input carried no
// usable number and the caller should reject the message.
func NormalizeOwnerKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

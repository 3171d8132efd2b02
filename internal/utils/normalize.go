package utils

import "strings"

// NormalizeDeviceID converts a raw device identifier into its canonical key:
// lowercase, with MAC-style separators and whitespace stripped. Every ingress
// path (broker, push gateway, registry lookups) must go through this so the
// transports cannot disagree on a device's key.
func NormalizeDeviceID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch r {
		case ':', '-', '_', '.', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

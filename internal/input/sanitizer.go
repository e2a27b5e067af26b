// Package input normalises free text coming from widgets and chat messages
// before it reaches the wizard state.
package input

import "strings"

// Replacement stands in for each run of bytes that is not valid UTF-8.
const Replacement = "\uFFFD"

// Normalize trims surrounding whitespace. Invalid UTF-8 is replaced with
// Replacement so every backend stores the same text the memory store does.
// It never rejects input; request size is bounded by the transport.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ToValidUTF8(text, Replacement))
}

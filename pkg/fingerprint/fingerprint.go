// Package fingerprint derives the identity of a checkbox task from its text.
//
// Two lines that differ only in priority marker, leading enumeration, trailing
// category/blocker tags, done marker, spacing or case share a fingerprint.
// Any other change to the description produces a new one.
package fingerprint

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Size is the number of hex characters kept from the content hash (48 bits).
const Size = 12

// namespace scopes the name-based UUIDs so fingerprints never collide with
// UUIDs minted for other purposes from the same text.
var namespace = uuid.MustParse("6f1c2d0e-8a4b-4c55-9a57-2b1e4f0c7d31")

var (
	markerRegex      = regexp.MustCompile(`^[🔴🟡🟢🔵📅]\d*\.?\s*`)
	enumerationRegex = regexp.MustCompile(`^\d+\.\s*`)
	categoryTagRegex = regexp.MustCompile(`(?i)\s*-?\s*(?:category|company):\s*[\p{L}\p{N}_\s]+$`)
	waitingRegex     = regexp.MustCompile(`(?i)\s*-?\s*waiting for:\s*.+$`)
	doneRegex        = regexp.MustCompile(`\s*✅(?:\s*\d{4}-\d{2}-\d{2})?\s*$`)
	blockedRegex     = regexp.MustCompile(`(?i)^blocked:\s*`)
)

// Normalize reduces task text to the part that carries its identity.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	s = markerRegex.ReplaceAllString(s, "")
	s = enumerationRegex.ReplaceAllString(s, "")
	s = doneRegex.ReplaceAllString(s, "")
	// Tags may appear in either order.
	s = categoryTagRegex.ReplaceAllString(s, "")
	s = waitingRegex.ReplaceAllString(s, "")
	s = categoryTagRegex.ReplaceAllString(s, "")
	return strings.ToLower(collapse(s))
}

// Of returns the fingerprint of text.
func Of(text string) string {
	id := uuid.NewMD5(namespace, []byte(Normalize(text)))
	return strings.ReplaceAll(id.String(), "-", "")[:Size]
}

// Clean returns the display name of a task: the text without its priority
// marker or done marker. Tags are kept.
func Clean(text string) string {
	s := markerRegex.ReplaceAllString(strings.TrimSpace(text), "")
	s = doneRegex.ReplaceAllString(s, "")
	return collapse(s)
}

// RemoteName normalizes an external record name for orphan matching.
func RemoteName(name string) string {
	s := blockedRegex.ReplaceAllString(strings.TrimSpace(name), "")
	s = strings.ReplaceAll(s, "✅", "")
	return strings.ToLower(collapse(s))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package util

import "strings"

// NormalizeID prepares an identifier for equality checks: separators ("-")
// are removed, surrounding whitespace trimmed and the result lowercased.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(id, "-", "")))
}

// SameID reports whether a and b name the same identity. Two empty ids are
// never the same identity.
func SameID(a, b string) bool {
	na, nb := NormalizeID(a), NormalizeID(b)
	return na != "" && na == nb
}

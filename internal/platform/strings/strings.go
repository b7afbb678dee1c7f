// Package strings provides small string and slice helpers
package strings

import std "strings"

// IfEmpty returns def if in is empty, otherwise in
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// MustPrefix normalizes a mount path like /bins to a single leading slash and no trailing one.
// Panics if nothing is left after trimming.
func MustPrefix(s string) string {
	s = "/" + std.Trim(std.TrimSpace(s), " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}

// Clip shortens s to at most n runes, marking the cut with an ellipsis
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// OrDash returns "---" for blank values, used by the metadata lines
func OrDash(s string) string {
	if std.TrimSpace(s) == "" {
		return "---"
	}
	return std.TrimSpace(s)
}

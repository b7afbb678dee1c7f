package testkit

import "testing"

// Swap replaces a package-level seam (clock, dialer, client factory) for one test
func Swap[T any](t *testing.T, target *T, replacement T) {
	t.Helper()
	orig := *target
	*target = replacement
	t.Cleanup(func() { *target = orig })
}

package raw

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetters(t *testing.T) {
	t.Setenv("BV_NAME", "  bins  ")
	t.Setenv("BV_ON", "YES")
	t.Setenv("BV_N", "42")
	t.Setenv("BV_BAD", "4x")

	c := New().Prefix("BV_")
	if got := c.Get("NAME", "x"); got != "bins" {
		t.Fatalf("Get = %q", got)
	}
	if got := c.Get("MISSING", "x"); got != "x" {
		t.Fatalf("Get default = %q", got)
	}
	if !c.GetBool("ON", false) {
		t.Fatalf("GetBool should accept YES")
	}
	if c.GetInt("N", 0) != 42 || c.GetInt("BAD", 7) != 7 {
		t.Fatalf("GetInt mismatch")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.env")
	if err := os.WriteFile(p, []byte("BV_DOT_A=from-file\nBV_DOT_B=file-b\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BV_DOT_A", "from-env")
	t.Setenv("BV_DOT_B", "")
	os.Unsetenv("BV_DOT_B")
	t.Cleanup(func() { os.Unsetenv("BV_DOT_B") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("BV_DOT_A"); got != "from-env" {
		t.Fatalf("existing env overridden: %q", got)
	}
	if got := os.Getenv("BV_DOT_B"); got != "file-b" {
		t.Fatalf("file value not loaded: %q", got)
	}
}

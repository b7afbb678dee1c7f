package logger

import (
	"bytes"
	"context"
	"testing"

	kit "binvote/internal/platform/testkit"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"trace", "trace"},
		{"debug", "debug"},
		{" WARN ", "warn"},
		{"error", "error"},
		{"", "info"},
		{"nonsense", "info"},
	}
	for _, c := range cases {
		if got := parseLevel(c.in).String(); got != c.want {
			t.Fatalf("parseLevel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Service: "binvote-test", Writer: &buf})

	ctx := WithSubmission(WithRequest(context.Background(), "req-1"), "acme/bins#7")
	C(ctx).Info().Msg("decision published")
	Named("engine").Debug().Str("poll_id", "p-9").Msg("poll finalized")

	out := buf.String()
	kit.MustContain(t, out, `"request_id":"req-1"`)
	kit.MustContain(t, out, `"submission":"acme/bins#7"`)
	kit.MustContain(t, out, `"component":"engine"`)
	kit.MustContain(t, out, `"service":"binvote-test"`)
}

func TestEmptyKeysAreSkipped(t *testing.T) {
	ctx := WithSubmission(WithRequest(context.Background(), ""), "")
	if ctx != context.Background() {
		t.Fatalf("empty ids should not wrap the context")
	}
	if Named("") != Get() {
		t.Fatalf("empty component should return root")
	}
}

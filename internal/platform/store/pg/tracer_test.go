package pg

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	kit "binvote/internal/platform/testkit"
)

func TestCompact(t *testing.T) {
	in := "insert into poll_records\n\t(poll_id, finalized)\n  values ($1,  false)"
	want := "insert into poll_records (poll_id, finalized) values ($1, false)"
	if got := compact(in); got != want {
		t.Fatalf("compact = %q", got)
	}
}

func TestTracerLevels(t *testing.T) {
	var buf bytes.Buffer
	tr := Tracer(zerolog.New(&buf).Level(zerolog.ErrorLevel))

	tr.OnQuery(context.Background(), QueryEvent{SQL: "select 1", ElapsedUS: 1500})
	tr.OnQuery(context.Background(), QueryEvent{SQL: "select pg_sleep(1)", Slow: true, Err: errors.New("boom")})

	out := buf.String()
	kit.MustContain(t, out, `"level":"info"`)
	kit.MustContain(t, out, `"elapsed_ms":1.5`)
	kit.MustContain(t, out, `"level":"warn"`)
	kit.MustContain(t, out, `"error":"boom"`)
}

func TestOpenRejectsBadURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{URL: "::not a dsn"}, nil, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

package store

import (
	"context"
	"errors"
	"testing"

	"binvote/internal/platform/config"
	perr "binvote/internal/platform/errors"
)

type fakeTag struct{ n int64 }

func (f fakeTag) String() string      { return "UPDATE" }
func (f fakeTag) RowsAffected() int64 { return f.n }

type fakeRows struct {
	data [][]any
	i    int
	err  error
}

func (r *fakeRows) Next() bool { r.i++; return r.i <= len(r.data) }
func (r *fakeRows) Scan(dst ...any) error {
	row := r.data[r.i-1]
	for i := range dst {
		switch d := dst[i].(type) {
		case *string:
			*d = row[i].(string)
		case *int:
			*d = row[i].(int)
		}
	}
	return nil
}
func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     {}

type fakeQ struct {
	affected int64
	rows     [][]any
	execErr  error
}

func (f *fakeQ) Exec(context.Context, string, ...any) (CommandTag, error) {
	return fakeTag{f.affected}, f.execErr
}
func (f *fakeQ) Query(context.Context, string, ...any) (Rows, error) {
	return &fakeRows{data: f.rows}, nil
}
func (f *fakeQ) QueryRow(context.Context, string, ...any) Row { return nil }

func TestExecOne(t *testing.T) {
	ctx := context.Background()
	if err := ExecOne(ctx, &fakeQ{affected: 1}, "update"); err != nil {
		t.Fatalf("ExecOne: %v", err)
	}
	err := ExecOne(ctx, &fakeQ{affected: 0}, "update")
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	boom := errors.New("boom")
	if err := ExecOne(ctx, &fakeQ{execErr: boom}, "update"); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

type pair struct {
	url string
	n   int
}

func scanPair(r Row) (pair, error) {
	var p pair
	err := r.Scan(&p.url, &p.n)
	return p, err
}

func TestOneAndMany(t *testing.T) {
	ctx := context.Background()
	q := &fakeQ{rows: [][]any{{"https://a/1.jpg", 1}, {"https://a/2.jpg", 2}}}

	all, err := Many(ctx, q, scanPair, "select")
	if err != nil || len(all) != 2 || all[1].url != "https://a/2.jpg" {
		t.Fatalf("Many = %v, %v", all, err)
	}
	first, err := One(ctx, q, scanPair, "select")
	if err != nil || first.n != 1 {
		t.Fatalf("One = %v, %v", first, err)
	}
	if _, err := One(ctx, &fakeQ{}, scanPair, "select"); !errors.Is(err, ErrNoRows) {
		t.Fatalf("want ErrNoRows, got %v", err)
	}
}

func TestZeroStore(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	if err := s.Guard(context.Background()); err == nil {
		t.Fatalf("nil Guard should fail")
	}
	if err := (&Store{}).Guard(context.Background()); err != nil {
		t.Fatalf("empty Guard: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SERVICE_PGSQL_DBURL", "postgres://u:p@db/binvote")
	t.Setenv("SERVICE_PGSQL_MAX_CONNS", "4")
	cfg := ConfigFromEnv(config.New())
	if !cfg.PG.Enabled || cfg.PG.MaxConns != 4 || cfg.PG.ConnectRetries != 20 {
		t.Fatalf("cfg = %+v", cfg.PG)
	}
}

package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestHTTPStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeUnknownKey, http.StatusNotFound},
		{ErrorCodeMalformedEvent, http.StatusBadRequest},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeInvalidArgument, http.StatusUnprocessableEntity},
		{ErrorCodeConflict, http.StatusConflict},
		{ErrorCodeUnavailable, http.StatusServiceUnavailable},
		{ErrorCodeTooManyRequests, http.StatusTooManyRequests},
		{ErrorCodeDB, http.StatusInternalServerError},
		{ErrorCodeUnknown, http.StatusInternalServerError},
		{9999, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatusCode(c.code); got != c.want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	src := stderrs.New("root")
	e := Wrapf(src, ErrorCodeDB, "set approved urls bin=%s", "411111")
	if CodeOf(e) != ErrorCodeDB {
		t.Fatalf("CodeOf = %v", CodeOf(e))
	}
	if want := "set approved urls bin=411111: root"; e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
	if Root(e) != src {
		t.Fatalf("Root did not return cause")
	}
	if got := WithOp(e, "publish"); got.(*Error).Op() != "publish" {
		t.Fatalf("WithOp did not stick")
	}
	if e.(*Error).Op() != "" {
		t.Fatalf("WithOp mutated the original")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("engine: %w", UnknownKeyf("poll %s", "p-1"))
	if !stderrs.Is(err, ErrUnknownKey) {
		t.Fatalf("errors.Is should match on code")
	}
	if stderrs.Is(err, ErrNotFound) {
		t.Fatalf("different codes must not match")
	}
	if !IsUnknownKey(err) || IsMalformed(err) {
		t.Fatalf("predicates disagree with code")
	}
}

func TestCodeStrings(t *testing.T) {
	if ErrorCodeUnavailable.String() != "adapter_unavailable" {
		t.Fatalf("unexpected %s", ErrorCodeUnavailable)
	}
	if ErrorCodeDB.String() != "storage_failure" {
		t.Fatalf("unexpected %s", ErrorCodeDB)
	}
	if ErrorCode(777).String() != "unknown" {
		t.Fatalf("unexpected default")
	}
}

func TestWireFrom(t *testing.T) {
	if w := WireFrom(nil); w.Code != 0 || w.Message != "" {
		t.Fatalf("nil wire should be zero, got %+v", w)
	}
	w := WireFrom(WithField(Newf(ErrorCodeValidation, "bad bin"), "bin"))
	if w.Code != ErrorCodeValidation || w.Field != "bin" {
		t.Fatalf("wire = %+v", w)
	}
	w = WireFrom(stderrs.New("plain"))
	if w.Code != ErrorCodeUnknown || w.Message != "plain" {
		t.Fatalf("foreign wire = %+v", w)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransientNet(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"timeout", timeoutErr{}, true},
		{"tagged unavailable", Unavailablef("github 502"), true},
		{"tagged rate limit", Newf(ErrorCodeTooManyRequests, "slow down"), true},
		{"malformed", Malformedf("bad json"), false},
		{"plain", stderrs.New("boom"), false},
	}
	for _, c := range cases {
		if got := IsTransientNet(c.err); got != c.want {
			t.Fatalf("%s: IsTransientNet = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("nil in should be nil out")
	}
	dup := &pgconn.PgError{Code: "23505"}
	if !IsCode(FromPostgres(dup, "insert"), ErrorCodeConflict) {
		t.Fatalf("unique violation should map to conflict")
	}
	if !IsDuplicateKey(FromPostgres(dup, "insert")) {
		t.Fatalf("IsDuplicateKey should see through wrap")
	}
	if !IsCode(FromPostgres(stderrs.New("conn closed"), "q"), ErrorCodeDB) {
		t.Fatalf("foreign errors are storage failures")
	}
	if got := FromPostgres(stderrs.New("conn closed"), "forget issue").Error(); got != "forget issue: conn closed" {
		t.Fatalf("storage failure message = %q", got)
	}
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure is retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("cancel is not retryable")
	}
}

package binlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"binvote/internal/platform/backoff"
	perr "binvote/internal/platform/errors"
)

func TestLookupDecodesLooseTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bin") != "411111" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"bin":411111,"brand":"VISA","type":"CREDIT","category":null,"issuer":" Test Bank ","country":"US"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/banklist.php?bin=", Retry: backoff.Policy{Attempts: 1}})
	m, err := c.Lookup(context.Background(), "411111")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if m.BIN != "411111" || m.Issuer != "Test Bank" || m.Category != "" {
		t.Fatalf("meta = %+v", m)
	}
	want := strings.Join([]string{
		"BIN：411111",
		"品牌：VISA",
		"類型：CREDIT",
		"卡片等級：---",
		"發卡行：Test Bank",
		"國家：US",
		"發卡行電話：---",
		"發卡行網址：---",
	}, "\n")
	if m.Text() != want {
		t.Fatalf("Text =\n%s\nwant\n%s", m.Text(), want)
	}
}

func TestLookupRetriesThenReportsUnavailable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Retry: backoff.Policy{Attempts: 3, Delay: time.Millisecond}})
	m, err := c.Lookup(context.Background(), "522222")
	if !perr.IsAdapterUnavailable(err) {
		t.Fatalf("want unavailable, got %v", err)
	}
	if calls != 3 || m.BIN != "522222" {
		t.Fatalf("calls = %d meta = %+v", calls, m)
	}
}

func TestRequestURL(t *testing.T) {
	c := New(Options{BaseURL: "https://example.test/banklist.php?bin="})
	if got := c.RequestURL("123456"); got != "https://example.test/banklist.php?bin=123456" {
		t.Fatalf("RequestURL = %q", got)
	}
}

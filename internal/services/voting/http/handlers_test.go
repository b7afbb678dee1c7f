package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"binvote/internal/core/tally"
	phttp "binvote/internal/platform/net/http"
	"binvote/internal/services/voting/domain"

	"github.com/go-chi/chi/v5"
)

type lister []domain.SessionView

func (l lister) Sessions() []domain.SessionView { return l }

func TestSessionsRoute(t *testing.T) {
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), lister{{
		Key:        "o/r#1",
		BIN:        "411111",
		DeadlineAt: time.Date(2025, 1, 1, 0, 15, 0, 0, time.UTC),
		Totals:     tally.Totals{Approve: 2},
	}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/sessions", nil))
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var env struct {
		Data SessionsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Count != 1 || env.Data.Sessions[0].Key != "o/r#1" || env.Data.Sessions[0].Totals.Approve != 2 {
		t.Fatalf("body = %s", rec.Body)
	}
}

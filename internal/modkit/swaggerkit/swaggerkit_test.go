package swaggerkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	phttp "binvote/internal/platform/net/http"
	kit "binvote/internal/platform/testkit"

	"github.com/go-chi/chi/v5"
)

func TestDocJSONIsNormalized(t *testing.T) {
	m := chi.NewRouter()
	Mount(phttp.AdaptChi(m), true)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/doc.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var spec map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if spec["openapi"] != "3.0.3" || spec["servers"] == nil {
		t.Fatalf("spec header = %v / %v", spec["openapi"], spec["servers"])
	}
	kit.MustContain(t, rec.Body.String(), "/bins/{bin}")
	kit.MustContain(t, rec.Body.String(), "ErrorResponse")
}

func TestDocJSONParseError(t *testing.T) {
	kit.Swap(t, &docReader, func() string { return "{" })
	rec := httptest.NewRecorder()
	serveDocJSON()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMountDisabled(t *testing.T) {
	m := chi.NewRouter()
	Mount(phttp.AdaptChi(m), false)
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/doc.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

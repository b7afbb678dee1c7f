package api

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"binvote/internal/modkit/module"
	phttp "binvote/internal/platform/net/http"
	metamod "binvote/internal/services/api/meta/module"

	"github.com/go-chi/chi/v5"
)

func TestMountServesModulesAndDocs(t *testing.T) {
	mux := chi.NewRouter()
	Mount(phttp.AdaptChi(mux), Options{
		Modules:       []module.Module{metamod.New("binvote", nil)},
		CORSOrigins:   []string{"*"},
		EnableSwagger: true,
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/api/v1/meta/health", nil))
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("common middleware not applied: %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/api/docs/doc.json", nil))
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/bins/{bin}"]; !ok {
		t.Fatalf("paths = %v", paths)
	}
}

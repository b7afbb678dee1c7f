// Package swaggerkit serves the API docs UI and its OpenAPI document
package swaggerkit

import (
	"net/http"

	phttp "binvote/internal/platform/net/http"
	"binvote/internal/services/api/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Base is where the docs UI lives; doc.json sits under it
const Base = "/api/docs"

// Mount serves the UI and doc.json under Base; nothing is mounted when disabled
func Mount(r phttp.Router, enabled bool) {
	if !enabled {
		return
	}
	r.Get(Base, func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, Base+"/", http.StatusPermanentRedirect)
	})
	r.Get(Base+"/doc.json", serveDocJSON())
	r.Handle(Base+"/*", httpSwagger.Handler(
		httpSwagger.InstanceName(docs.SwaggerInfo.InstanceName()),
		httpSwagger.URL(Base+"/doc.json"),
		httpSwagger.DocExpansion("list"),
	))
}

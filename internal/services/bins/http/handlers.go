// Package http exposes BIN lookups
package http

import (
	stdhttp "net/http"

	"binvote/internal/modkit/httpkit"
	"binvote/internal/services/bins/domain"
	svc "binvote/internal/services/bins/service"
)

// Register mounts the bins routes
func Register(r httpkit.Router, s *svc.Svc) {
	h := &handlers{svc: s}
	httpkit.Get(r, "/{bin}", h.get)
}

type handlers struct{ svc *svc.Svc }

// swagger:route GET /bins/{bin} Bins binsGet
// @Summary BIN metadata and approved photos
// @Tags Bins
// @Produce json
// @Param bin path string true "six digit BIN"
// @Success 200 {object} domain.Result "ok"
// @Failure 422 {object} httpkit.Envelope "invalid bin"
// @Router /bins/{bin} [get]
func (h *handlers) get(r *stdhttp.Request) (any, error) {
	return h.svc.Lookup(r.Context(), domain.Query{BIN: httpkit.Param(r, "bin")})
}

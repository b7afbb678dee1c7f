// Package module wires BIN queries for the HTTP API and chat
package module

import (
	"net/http"

	"binvote/internal/modkit"
	"binvote/internal/modkit/httpkit"
	str "binvote/internal/platform/strings"
	"binvote/internal/services/bins/domain"
	binshttp "binvote/internal/services/bins/http"
	"binvote/internal/services/bins/service"
	voting "binvote/internal/services/voting/domain"
)

// Wiring carries the query adapters
type Wiring struct {
	Meta   domain.MetaPort
	Photos domain.PhotoStore
	Images voting.ImageFetcher
	Owner  string
	Repo   string
}

// Ports exposed by the bins module
type Ports struct {
	Query *service.Svc
}

// Module implements modkit.Module
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	svc    *service.Svc
}

// New builds the bins module
func New(_ modkit.Deps, w Wiring, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("bins"), modkit.WithPrefix("/bins")}, opts...)...)
	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		svc:    service.New(w.Meta, w.Photos, w.Images, service.Config{Owner: w.Owner, Repo: w.Repo}),
	}
}

// Query is the BIN query service, also used for chat replies
func (m *Module) Query() *service.Svc { return m.svc }

// Name satisfies modkit.Module
func (m *Module) Name() string { return m.name }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return Ports{Query: m.svc} }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(str.MustPrefix(m.prefix), func(rr httpkit.Router) {
		if len(m.mws) > 0 {
			rr.Use(m.mws...)
		}
		binshttp.Register(rr, m.svc)
	})
}

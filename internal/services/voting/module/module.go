// Package module wires the voting engine, its store and the sessions route
package module

import (
	"context"
	"net/http"

	"binvote/internal/modkit"
	"binvote/internal/modkit/httpkit"
	"binvote/internal/modkit/repokit"
	str "binvote/internal/platform/strings"
	"binvote/internal/services/voting/domain"
	votinghttp "binvote/internal/services/voting/http"
	"binvote/internal/services/voting/repo"
	"binvote/internal/services/voting/service"
)

// Wiring carries the adapters the engine talks to. Chat or Bot may be nil.
type Wiring struct {
	Store     domain.Store
	Chat      domain.ChatPort
	Bot       domain.PollBotPort
	Chats     []int64
	PollChats []int64
	Publisher domain.Publisher
	Images    domain.ImageFetcher
}

// Ports exposed by the voting module
type Ports struct {
	Dispatcher domain.Dispatcher
	Events     domain.EventHandler
	Sessions   domain.SessionLister
}

// Module implements modkit.Module and modkit.Worker
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	engine *service.Engine
	ports  Ports
}

// NewStore binds the Postgres store to the module deps; it panics without a pool
func NewStore(deps modkit.Deps) domain.Store { return repokit.MustBind(repo.NewPG(), deps.PG) }

// Migrate applies the voting schema
func Migrate(ctx context.Context, deps modkit.Deps) error { return repo.Migrate(ctx, deps.PG) }

// New builds the engine from deps and wiring
func New(deps modkit.Deps, w Wiring, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("voting"), modkit.WithPrefix("/votes")}, opts...)...)
	o := FromConfig(deps.Cfg)

	store := w.Store
	if store == nil {
		store = NewStore(deps)
	}
	e := service.New(service.Deps{
		Store:     store,
		Chat:      w.Chat,
		Bot:       w.Bot,
		Publisher: w.Publisher,
		Images:    w.Images,
	}, service.Config{
		Deadline:       o.Deadline,
		Extension:      o.Extension,
		Sweep:          o.Sweep,
		MaxImages:      o.MaxImages,
		PollMaxOptions: o.PollMaxOptions,
		RejectOption:   o.RejectOption,
		GroupChannels:  w.Chats,
		PollChats:      w.PollChats,
	})
	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		engine: e,
		ports:  Ports{Dispatcher: e, Events: e, Sessions: e},
	}
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return m.name }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Run drives the deadline sweeper
func (m *Module) Run(ctx context.Context) error { return m.engine.RunSweeper(ctx) }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(str.MustPrefix(m.prefix), func(rr httpkit.Router) {
		if len(m.mws) > 0 {
			rr.Use(m.mws...)
		}
		votinghttp.Register(rr, m.engine)
	})
}

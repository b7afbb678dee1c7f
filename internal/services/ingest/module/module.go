// Package module wires the ingest worker to the GitHub tracker and the voting dispatcher
package module

import (
	"context"

	"binvote/internal/adapters/tracker/github"
	"binvote/internal/modkit"
	phttp "binvote/internal/platform/net/http"
	"binvote/internal/services/ingest/domain"
	"binvote/internal/services/ingest/guardrails"
	"binvote/internal/services/ingest/service"
	voting "binvote/internal/services/voting/domain"
)

// Ports exposed by the ingest module
type Ports struct {
	Runner interface {
		Tick(ctx context.Context) (domain.TickStats, error)
	}
}

// Wiring carries the tracker, the seen store and where new submissions go.
// Ready, when set, holds passes back until the chat side is connected.
type Wiring struct {
	Tracker    *github.Client
	Seen       voting.SeenStore
	Dispatcher voting.Dispatcher
	Ready      func() bool
}

// Module implements modkit.Module and modkit.Worker; it mounts no routes
type Module struct {
	svc   *service.Svc
	ports Ports
}

// New builds the ingest worker
func New(deps modkit.Deps, w Wiring) *Module {
	o := FromConfig(deps.Cfg)
	lease := guardrails.NoLease
	if o.Lease && deps.PG != nil {
		lease = guardrails.AdvisoryLease(deps.PG)
	}
	svc := service.New(domain.Deps{
		Tracker:    tracker{w.Tracker},
		Seen:       w.Seen,
		Dispatcher: w.Dispatcher,
		Ready:      w.Ready,
	}, service.Config{Interval: o.Interval, TickBudget: o.TickBudget}, lease)
	return &Module{svc: svc, ports: Ports{Runner: svc}}
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "ingest" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(phttp.Router) {}

// Run satisfies modkit.Worker
func (m *Module) Run(ctx context.Context) error { return m.svc.Run(ctx) }

type tracker struct{ c *github.Client }

func (t tracker) Owner() string { return t.c.Owner() }
func (t tracker) Repo() string  { return t.c.Repo() }

func (t tracker) ListOpenIssues(ctx context.Context) ([]domain.Issue, error) {
	raw, err := t.c.ListOpenIssues(ctx)
	out := make([]domain.Issue, 0, len(raw))
	for _, is := range raw {
		out = append(out, domain.Issue{
			Number:    is.Number,
			Title:     is.Title,
			Body:      is.Body,
			State:     is.State,
			CreatedAt: is.CreatedAt,
			UpdatedAt: is.UpdatedAt,
		})
	}
	return out, err
}

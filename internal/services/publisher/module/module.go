// Package module wires the outcome publisher
package module

import (
	"binvote/internal/modkit"
	"binvote/internal/platform/logger"
	phttp "binvote/internal/platform/net/http"
	"binvote/internal/services/publisher/domain"
	"binvote/internal/services/publisher/service"
	voting "binvote/internal/services/voting/domain"
)

// Wiring carries the publisher's adapters. Sinks maps sink names to the notifiers that exist.
type Wiring struct {
	Store   voting.OutcomeStore
	Tracker domain.TrackerPort
	Meta    domain.MetaPort
	Images  voting.ImageFetcher
	Sinks   map[string]voting.Notifier
}

// Ports exposed by the publisher module
type Ports struct {
	Publisher voting.Publisher
}

// Module implements modkit.Module
type Module struct {
	ports Ports
}

// New builds the publisher and picks the notification sink
func New(deps modkit.Deps, w Wiring) *Module {
	o := FromConfig(deps.Cfg)
	log := logger.Named("publisher")

	var sink voting.Notifier
	if o.Sink != SinkNone {
		sink = w.Sinks[o.Sink]
		if sink == nil {
			log.Warn().Str("sink", o.Sink).Msg("notify sink not configured, admin notifications off")
		}
	}
	svc := service.New(service.Deps{
		Store:    w.Store,
		Tracker:  w.Tracker,
		Notifier: sink,
		Meta:     w.Meta,
		Images:   w.Images,
	}, service.Config{Previews: o.Previews, KeepOpen: o.KeepOpen})
	return &Module{ports: Ports{Publisher: svc}}
}

// Publisher is the configured voting.Publisher
func (m *Module) Publisher() voting.Publisher { return m.ports.Publisher }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "publisher" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(phttp.Router) {}

// Package service applies a decision: claim, store, comment and close, then notify once per BIN
package service

import (
	"context"
	"strings"

	"binvote/internal/platform/logger"
	"binvote/internal/services/publisher/domain"
	voting "binvote/internal/services/voting/domain"
)

const notifyHeader = "新BIN入库啦："

// Config for the publisher
type Config struct {
	// Previews caps the images attached to the admin notification
	Previews int
	// KeepOpen skips closing the issue after the comment
	KeepOpen bool
}

// Deps are the publisher's collaborators. Notifier, Meta and Images may be nil.
type Deps struct {
	Store    voting.OutcomeStore
	Tracker  domain.TrackerPort
	Notifier voting.Notifier
	Meta     domain.MetaPort
	Images   voting.ImageFetcher
}

// Svc implements voting.Publisher
type Svc struct {
	deps Deps
	cfg  Config
}

var _ voting.Publisher = (*Svc)(nil)

// New builds the publisher
func New(deps Deps, cfg Config) *Svc {
	if cfg.Previews <= 0 {
		cfg.Previews = 10
	}
	return &Svc{deps: deps, cfg: cfg}
}

// Publish runs each step on its own. A failed step is logged and the next one still runs;
// only a lost claim stops the pipeline, since another decision already owns the submission.
func (s *Svc) Publish(ctx context.Context, d voting.Decision) voting.Report {
	ctx = logger.WithSubmission(ctx, d.Ref.Key())
	log := logger.C(ctx)
	var rep voting.Report

	won, err := s.deps.Store.ClaimDecision(ctx, d)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("decision claim failed, publishing anyway")
		rep.Claimed = true
	case !won:
		log.Info().Str("strategy", string(d.Strategy)).Msg("submission already decided")
		return rep
	default:
		rep.Claimed = true
	}

	if d.Outcome == voting.Approved && len(d.SelectedURLs) > 0 {
		if d.BIN == "" {
			log.Warn().Msg("approved submission has no bin, urls not stored")
		} else {
			first, err := s.deps.Store.SetApprovedURLs(ctx, d.BIN, d.SelectedURLs)
			if err != nil {
				log.Warn().Err(err).Str("bin", d.BIN).Msg("store approved urls failed")
			} else {
				rep.Stored, rep.FirstInsertion = true, first
			}
		}
	}

	if err := s.deps.Tracker.Comment(ctx, d.Ref.Number, d.Summary(rep.Stored)); err != nil {
		log.Warn().Err(err).Msg("issue comment failed")
	} else {
		rep.Commented = true
	}
	if !s.cfg.KeepOpen {
		if err := s.deps.Tracker.CloseIssue(ctx, d.Ref.Number); err != nil {
			log.Warn().Err(err).Msg("issue close failed")
		} else {
			rep.Closed = true
		}
	}

	if rep.FirstInsertion {
		rep.Notified = s.notify(ctx, d)
	}

	log.Info().Str("outcome", string(d.Outcome)).Str("bin", d.BIN).
		Bool("stored", rep.Stored).Bool("first", rep.FirstInsertion).
		Bool("commented", rep.Commented).Bool("closed", rep.Closed).Bool("notified", rep.Notified).
		Msg("decision published")
	return rep
}

// notify sends the admin message once per BIN; the marker is set before anything goes out
func (s *Svc) notify(ctx context.Context, d voting.Decision) bool {
	log := logger.C(ctx)
	if s.deps.Notifier == nil {
		return false
	}
	inserted, err := s.deps.Store.TryMarkNotified(ctx, d.BIN)
	if err != nil {
		log.Warn().Err(err).Str("bin", d.BIN).Msg("notify marker failed")
		return false
	}
	if !inserted {
		log.Debug().Str("bin", d.BIN).Msg("bin already announced")
		return false
	}

	text := s.notifyText(ctx, d.BIN)
	images := s.previews(ctx, d.SelectedURLs)
	if err := s.deps.Notifier.Notify(ctx, text, images); err != nil {
		log.Warn().Err(err).Str("bin", d.BIN).Msg("admin notification failed")
		return false
	}
	return true
}

func (s *Svc) notifyText(ctx context.Context, bin string) string {
	var lines []string
	if s.deps.Meta != nil {
		m, err := s.deps.Meta.Lookup(ctx, bin)
		if err != nil {
			logger.C(ctx).Warn().Err(err).Str("bin", bin).Msg("bin metadata lookup failed")
		}
		lines = m.Lines()
	} else {
		lines = []string{"BIN：" + bin}
	}
	return notifyHeader + "\n" + strings.Join(lines, "\n")
}

// previews downloads up to cfg.Previews images in order, dropping the ones that fail
func (s *Svc) previews(ctx context.Context, urls []string) [][]byte {
	if s.deps.Images == nil || len(urls) == 0 {
		return nil
	}
	var out [][]byte
	for _, b := range s.deps.Images.All(ctx, urls[:min(len(urls), s.cfg.Previews)]) {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

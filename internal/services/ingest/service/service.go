// Package service polls the tracker for new submissions and starts their votes
package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"binvote/internal/core/submission"
	"binvote/internal/platform/logger"
	"binvote/internal/services/ingest/domain"
	"binvote/internal/services/ingest/guardrails"
	voting "binvote/internal/services/voting/domain"
)

// Config for the ingest service
type Config struct {
	Interval time.Duration
	// TickBudget bounds one pass; zero means no limit
	TickBudget time.Duration
}

// Svc runs ingest passes
type Svc struct {
	deps  domain.Deps
	cfg   Config
	lease guardrails.Lease
	log   *logger.Logger
}

// New builds the ingest service. A nil lease runs passes unguarded.
func New(deps domain.Deps, cfg Config, lease guardrails.Lease) *Svc {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if lease == nil {
		lease = guardrails.NoLease
	}
	return &Svc{deps: deps, cfg: cfg, lease: lease, log: logger.Named("ingest")}
}

// Run ticks until ctx ends. Passes never overlap: a slow pass delays the next tick.
func (s *Svc) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Svc) runOnce(ctx context.Context) {
	if s.deps.Ready != nil && !s.deps.Ready() {
		s.log.Debug().Msg("ingest pass deferred, chat not connected")
		return
	}
	ctx, cancel := guardrails.WithBudget(ctx, s.cfg.TickBudget)
	defer cancel()
	var st domain.TickStats
	err := s.lease(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.Tick(ctx)
		return err
	})
	switch {
	case errors.Is(err, guardrails.ErrLeaseHeld):
		s.log.Debug().Msg("ingest pass skipped, lease held")
	case err != nil && ctx.Err() == nil:
		s.log.Warn().Err(err).Msg("ingest pass failed")
	case st.New > 0:
		s.log.Info().Int("listed", st.Listed).Int("new", st.New).
			Int("dispatched", st.Dispatched).Int("failed", st.Failed).Msg("ingest pass")
	}
}

// Tick lists open issues and starts votes for the ones never seen before. Only a listing failure
// is returned; per issue failures are logged and counted. An issue no strategy could start for is
// unmarked so the next pass retries it.
func (s *Svc) Tick(ctx context.Context) (domain.TickStats, error) {
	var st domain.TickStats
	issues, err := s.deps.Tracker.ListOpenIssues(ctx)
	if err != nil {
		return st, err
	}
	st.Listed = len(issues)
	slices.SortFunc(issues, func(a, b domain.Issue) int { return a.Number - b.Number })

	for _, is := range issues {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		sub := s.submission(is)
		lctx := logger.WithSubmission(ctx, sub.Ref.Key())
		existed, err := s.deps.Seen.MarkIssueSeen(lctx, sub)
		if err != nil {
			logger.C(lctx).Warn().Err(err).Msg("mark seen failed")
			st.Failed++
			continue
		}
		if existed {
			continue
		}
		st.New++
		routes, err := s.route(lctx, sub)
		if err != nil {
			logger.C(lctx).Warn().Err(err).Msg("dispatch failed, retrying next pass")
			if ferr := s.deps.Seen.ForgetIssue(lctx, sub.Ref); ferr != nil {
				logger.C(lctx).Error().Err(ferr).Msg("seen marker not released, issue will not be retried")
			}
			st.Failed++
			continue
		}
		if routes[0] != domain.RouteNone {
			st.Dispatched++
		}
		logger.C(lctx).Info().Str("bin", sub.BIN).Int("candidates", len(sub.Candidates)).
			Any("routes", routes).Msg("submission ingested")
	}
	return st, nil
}

func (s *Svc) submission(is domain.Issue) voting.Submission {
	p := submission.Parse(is.Title, is.Body)
	return voting.Submission{
		Ref:            voting.Ref{Owner: s.deps.Tracker.Owner(), Repo: s.deps.Tracker.Repo(), Number: is.Number},
		Title:          is.Title,
		Body:           is.Body,
		State:          is.State,
		BIN:            p.BIN,
		AttachmentURLs: p.AttachmentURLs,
		TextURLs:       p.TextURLs,
		Candidates:     p.Candidates(),
		CreatedAt:      is.CreatedAt,
		UpdatedAt:      is.UpdatedAt,
	}
}

// route picks the strategies for a submission: one candidate gets a token, more get a poll and a
// group vote when those channels exist. Without a poll bot a single candidate goes to the group.
func (s *Svc) route(ctx context.Context, sub voting.Submission) ([]domain.Route, error) {
	d := s.deps.Dispatcher
	switch n := len(sub.Candidates); {
	case n == 0:
		return []domain.Route{domain.RouteNone}, nil
	case n == 1 && d.PollEnabled():
		return []domain.Route{domain.RouteToken}, d.StartToken(ctx, sub)
	}

	var routes []domain.Route
	var errs []error
	if d.PollEnabled() && len(sub.Candidates) > 1 {
		if err := d.StartPoll(ctx, sub); err != nil {
			errs = append(errs, err)
		} else {
			routes = append(routes, domain.RoutePoll)
		}
	}
	if d.GroupEnabled() {
		if err := d.StartGroupSession(ctx, sub); err != nil {
			errs = append(errs, err)
		} else {
			routes = append(routes, domain.RouteGroup)
		}
	}
	if len(routes) == 0 {
		if len(errs) == 0 {
			return []domain.Route{domain.RouteNone}, nil
		}
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		logger.C(ctx).Warn().Err(err).Msg("strategy not started")
	}
	return routes, nil
}

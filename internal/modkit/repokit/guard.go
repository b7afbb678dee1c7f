package repokit

import (
	"context"
	"time"

	perr "binvote/internal/platform/errors"
)

// Guarder is anything that can ping its backends, *store.Store in practice
type Guarder interface {
	Guard(context.Context) error
}

// Ready runs g.Guard within budget; a failure is AdapterUnavailable so /meta/ready reports 503
func Ready(ctx context.Context, g Guarder, budget time.Duration) error {
	if g == nil {
		return perr.Unavailablef("no store configured")
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	if err := g.Guard(ctx); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "store not ready")
	}
	return nil
}

// Probe binds Ready into a readiness check
func Probe(g Guarder, budget time.Duration) func(context.Context) error {
	return func(ctx context.Context) error { return Ready(ctx, g, budget) }
}

// Package guardrails keeps ingest passes bounded and single flight across processes
package guardrails

import (
	"context"
	"errors"
	"time"

	"binvote/internal/modkit/repokit"
)

// ErrLeaseHeld means another process is running an ingest pass right now
var ErrLeaseHeld = errors.New("ingest: tick lease held elsewhere")

// leaseKey is the advisory lock id for ingest passes
const leaseKey = "binvote.ingest"

// Lease runs do while holding a transaction scoped advisory lock. The lock is released with the
// transaction, so a crashed process never leaves it behind.
type Lease func(ctx context.Context, do func(context.Context) error) error

// AdvisoryLease builds a Lease over Postgres
func AdvisoryLease(tx repokit.TxRunner) Lease {
	return func(ctx context.Context, do func(context.Context) error) error {
		return repokit.WithTx(ctx, tx, func(q repokit.Queryer) error {
			var got bool
			if err := q.QueryRow(ctx, `select pg_try_advisory_xact_lock(hashtext($1))`, leaseKey).Scan(&got); err != nil {
				return err
			}
			if !got {
				return ErrLeaseHeld
			}
			return do(ctx)
		})
	}
}

// NoLease runs do directly
func NoLease(ctx context.Context, do func(context.Context) error) error { return do(ctx) }

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// WithBudget bounds ctx by d without extending a tighter parent deadline. Zero means no extra limit.
func WithBudget(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}

// Package backoff runs adapter calls under a bounded retry policy.
// Only errors perr.IsTransientNet accepts are retried.
package backoff

import (
	"context"
	"time"

	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"

	"github.com/codeGROOVE-dev/retry"
)

// Policy bounds one retried call
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	// Linear waits attempt*Delay before each retry; otherwise the delay doubles with jitter
	Linear bool

	// RetryIf overrides the transient classifier
	RetryIf func(error) bool
}

// Default is three attempts waiting 300ms then 600ms
var Default = Policy{Attempts: 3, Delay: 300 * time.Millisecond, MaxDelay: 5 * time.Second, Linear: true}

// linear is attempt*delay; attempt counts retries from 1
func linear(delay time.Duration) retry.DelayTypeFunc {
	return func(attempt uint, _ error, _ *retry.Config) time.Duration {
		return time.Duration(attempt) * delay
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// The returned error is fn's last error (or ctx's), never a joined list.
func Do(ctx context.Context, p Policy, log *logger.Logger, op string, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = Default.Delay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = Default.MaxDelay
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = perr.IsTransientNet
	}

	opts := []retry.Option{
		retry.Attempts(uint(p.Attempts)),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.Context(ctx),
		retry.RetryIf(retryIf),
		retry.OnRetry(func(n uint, err error) {
			if log != nil {
				log.Warn().Err(err).Str("op", op).Uint("attempt", n+1).Msg("transient failure, retrying")
			}
		}),
	}
	if p.Linear {
		opts = append(opts, retry.DelayType(linear(p.Delay)))
	}

	var last error
	err := retry.Do(func() error {
		last = fn(ctx)
		return last
	}, opts...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && last == nil {
		return ctx.Err()
	}
	if last != nil {
		return last
	}
	return err
}

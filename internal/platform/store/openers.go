package store

import (
	"context"
	"fmt"
	"time"

	"binvote/internal/platform/store/pg"

	"github.com/codeGROOVE-dev/retry"
)

// openPG opens the pool, waits until it answers a ping and wraps it in the sql adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.PG.LogSQL {
		tracer = pg.Tracer(s.Log)
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		AppName:  cfg.AppName,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
	}, tracer, nil)
	if err != nil {
		return nil, err
	}

	attempts := cfg.PG.ConnectRetries
	if attempts <= 0 {
		attempts = 20
	}
	pingTimeout := cfg.PG.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}

	err = retry.Do(
		func() error {
			toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return p.Pool.Ping(toCtx)
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(150*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.Log.Debug().Uint("attempt", n+1).Err(err).Msg("postgres not ready")
		}),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping failed after %d attempts: %w", attempts, err)
	}
	return newPGAdapter(p), nil
}

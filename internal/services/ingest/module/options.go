package module

import (
	"time"

	"binvote/internal/platform/config"
)

// Options holds ingest settings
type Options struct {
	Interval   time.Duration
	TickBudget time.Duration
	Lease      bool
}

// FromConfig reads BINVOTE_INGEST_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("BINVOTE_INGEST_")
	return Options{
		Interval:   c.MayDuration("INTERVAL", 10*time.Second),
		TickBudget: c.MayDuration("TICK_BUDGET", 5*time.Minute),
		Lease:      c.MayBool("LEASE", true),
	}
}

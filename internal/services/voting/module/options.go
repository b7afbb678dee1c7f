package module

import (
	"time"

	"binvote/internal/platform/config"
)

// Options holds the voting module settings
type Options struct {
	Deadline       time.Duration
	Extension      time.Duration
	Sweep          time.Duration
	MaxImages      int
	PollMaxOptions int
	RejectOption   bool
}

// FromConfig reads BINVOTE_VOTE_* and BINVOTE_POLL_*
func FromConfig(cfg config.Conf) Options {
	v := cfg.Prefix("BINVOTE_VOTE_")
	p := cfg.Prefix("BINVOTE_POLL_")
	return Options{
		Deadline:       v.MayDuration("DEADLINE", 15*time.Minute),
		Extension:      v.MayDuration("EXTENSION", 5*time.Minute),
		Sweep:          v.MayDuration("SWEEP", 5*time.Second),
		MaxImages:      v.MayInt("MAX_IMAGES", 15),
		PollMaxOptions: p.MayInt("MAX_OPTIONS", 10),
		RejectOption:   p.MayBool("REJECT_OPTION", true),
	}
}

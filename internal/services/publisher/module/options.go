package module

import "binvote/internal/platform/config"

// Sink names accepted by BINVOTE_NOTIFY_SINK
const (
	SinkOneBot   = "onebot"
	SinkTelegram = "telegram"
	SinkNone     = "none"
)

// Options holds publisher settings
type Options struct {
	Sink     string
	Previews int
	KeepOpen bool
}

// FromConfig reads BINVOTE_NOTIFY_* and BINVOTE_PUBLISH_*
func FromConfig(cfg config.Conf) Options {
	n := cfg.Prefix("BINVOTE_NOTIFY_")
	p := cfg.Prefix("BINVOTE_PUBLISH_")
	return Options{
		Sink:     n.MayEnum("SINK", SinkOneBot, SinkOneBot, SinkTelegram, SinkNone),
		Previews: n.MayInt("PREVIEWS", 10),
		KeepOpen: p.MayBool("KEEP_OPEN", false),
	}
}

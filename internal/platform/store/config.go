package store

import (
	"time"

	"binvote/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string
	PG      PGConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	ConnectRetries int           // ping attempts before giving up
	PingTimeout    time.Duration // per attempt
}

// ConfigFromEnv reads SERVICE_PGSQL_*; PG is enabled when a URL is present
func ConfigFromEnv(cfg config.Conf) Config {
	pc := cfg.Prefix("SERVICE_PGSQL_")
	return Config{
		AppName: cfg.MayString("SERVICE_NAME", "binvote"),
		PG: PGConfig{
			Enabled:        pc.Has("DBURL"),
			URL:            pc.MayString("DBURL", ""),
			MaxConns:       int32(pc.MayInt("MAX_CONNS", 4)),
			LogSQL:         pc.MayBool("LOG_SQL", false),
			SlowQueryMs:    pc.MayInt("SLOW_MS", 500),
			ConnectRetries: pc.MayInt("CONNECT_RETRIES", 20),
			PingTimeout:    pc.MayDuration("PING_TIMEOUT", 3*time.Second),
		},
	}
}

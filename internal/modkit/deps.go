// Package modkit provides module wiring and core deps
package modkit

import (
	"binvote/internal/modkit/repokit"
	"binvote/internal/platform/config"
	"binvote/internal/platform/logger"
)

// Deps holds core dependencies passed to modules
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
}

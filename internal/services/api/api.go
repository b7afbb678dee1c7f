// Package api mounts the query API: module routes under /api/v1 plus the docs UI
package api

import (
	"binvote/internal/platform/logger"
	phttp "binvote/internal/platform/net/http"

	"binvote/internal/modkit/httpkit"
	"binvote/internal/modkit/module"
	"binvote/internal/modkit/swaggerkit"
)

// Options are the API options
type Options struct {
	Modules       []module.Module
	CORSOrigins   []string
	EnableSwagger bool
}

// Mount mounts every module under /api/v1 with the common middleware stack
func Mount(r phttp.Router, opt Options) {
	log := logger.Named("api")
	swaggerkit.Mount(r, opt.EnableSwagger)

	httpkit.MountAPIV1(r, httpkit.CommonStack(opt.CORSOrigins), func(api httpkit.Router) {
		for _, m := range opt.Modules {
			m.MountRoutes(api)
			log.Debug().Str("module", m.Name()).Msg("module mounted")
		}
	})
}

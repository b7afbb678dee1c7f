// Package module defines the minimal module contract and port lookup
package module

import phttp "binvote/internal/platform/net/http"

// Module mirrors modkit.Module without importing it, so a module can also export its own ports type
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}

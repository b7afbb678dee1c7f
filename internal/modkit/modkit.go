package modkit

import (
	"context"

	phttp "binvote/internal/platform/net/http"
)

// Module is the common surface for modules that mount routes and expose ports
type Module interface {
	// MountRoutes mounts HTTP routes under the provided router seam
	MountRoutes(r phttp.Router)
	// Ports returns a module specific port set for cross wiring
	Ports() any
	// Name returns the module name
	Name() string
}

// Worker is implemented by modules that own a background loop
type Worker interface {
	Run(ctx context.Context) error
}

// Package domain holds the publisher ports
package domain

import (
	"context"

	"binvote/internal/adapters/binlist"
)

// TrackerPort is the write side of the issue tracker
type TrackerPort interface {
	Comment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
}

// MetaPort resolves BIN metadata for the admin notification
type MetaPort interface {
	Lookup(ctx context.Context, bin string) (binlist.Meta, error)
}

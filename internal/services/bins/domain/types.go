// Package domain holds the BIN query types and ports
package domain

import (
	"context"

	"binvote/internal/adapters/binlist"
)

// Query is a BIN lookup request
type Query struct {
	BIN string `json:"bin" validate:"required,bin"`
}

// Result is what a BIN query returns
type Result struct {
	BIN       string       `json:"bin"        example:"411111"`
	Meta      binlist.Meta `json:"meta"`
	URLs      []string     `json:"urls"`
	ReportURL string       `json:"report_url,omitempty" example:"https://github.com/o/r/issues/new?template=bin-photos.md"`
}

// MetaPort resolves BIN metadata
type MetaPort interface {
	Lookup(ctx context.Context, bin string) (binlist.Meta, error)
}

// PhotoStore reads the approved URL set of a BIN
type PhotoStore interface {
	GetApprovedURLs(ctx context.Context, bin string) ([]string, error)
}

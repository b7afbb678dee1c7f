// Package domain holds the ingest ports
package domain

import (
	"context"
	"time"

	voting "binvote/internal/services/voting/domain"
)

// Issue is an open tracker issue as ingest sees it
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackerPort lists the open issues of one repository
type TrackerPort interface {
	Owner() string
	Repo() string
	ListOpenIssues(ctx context.Context) ([]Issue, error)
}

// Route names what ingest did with a submission
type Route string

const (
	RouteNone  Route = "none"
	RouteToken Route = "token"
	RoutePoll  Route = "poll"
	RouteGroup Route = "group"
)

// TickStats summarises one ingest pass
type TickStats struct {
	Listed     int
	New        int
	Dispatched int
	Failed     int
}

// Deps are the ports ingest drives
type Deps struct {
	Tracker    TrackerPort
	Seen       voting.SeenStore
	Dispatcher voting.Dispatcher
	// Ready gates passes until the dispatch channels can deliver; nil means always ready
	Ready func() bool
}

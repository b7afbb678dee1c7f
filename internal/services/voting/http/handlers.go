// Package http exposes the live vote sessions
package http

import (
	stdhttp "net/http"

	"binvote/internal/modkit/httpkit"
	"binvote/internal/services/voting/domain"
)

// Register mounts the voting routes
func Register(r httpkit.Router, s domain.SessionLister) {
	h := &handlers{sessions: s}
	httpkit.Get(r, "/sessions", h.list)
}

type handlers struct{ sessions domain.SessionLister }

// SessionsResponse lists open group votes
type SessionsResponse struct {
	Sessions []domain.SessionView `json:"sessions"`
	Count    int                  `json:"count" example:"1"`
}

// swagger:route GET /votes/sessions Votes votesSessions
// @Summary Open group chat votes
// @Tags Votes
// @Produce json
// @Success 200 {object} SessionsResponse "ok"
// @Router /votes/sessions [get]
func (h *handlers) list(_ *stdhttp.Request) (any, error) {
	s := h.sessions.Sessions()
	return SessionsResponse{Sessions: s, Count: len(s)}, nil
}

package httpkit

import (
	"net/http"
	"time"

	"binvote/internal/platform/net/middleware"
)

// CommonStack is the baseline middleware for the API scope
func CommonStack(corsOrigins []string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.LogContext,
		middleware.RecoverJSON,
		middleware.NoCache(),
		middleware.AccessLogZerolog(middleware.AccessLogOptions{
			Slow:  500 * time.Millisecond,
			Quiet: []string{"/api/v1/meta/health", "/api/v1/meta/ready"},
		}),
		middleware.CORS(middleware.CORSOptions{AllowedOrigins: corsOrigins}),
		middleware.Timeout(30 * time.Second),
	}
}

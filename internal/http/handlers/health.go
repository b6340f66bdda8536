package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ev-charging-log/internal/http/middleware"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Description HEAD returns 200 without a body so clients can probe cheaply.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
// @Router      /health [head]
func Health(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		writeStatus(c, http.StatusOK)
		return
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready returns a readiness handler that runs check with a short timeout.
//
// @ID          ready
// @Summary     Readiness probe
// @Description Pings the database.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Database unreachable"
// @Router      /ready [get]
func Ready(check ReadinessCheck, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		if err := check(ctx); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "database unavailable")
			return
		}
		ok(c, http.StatusOK, HealthResponse{Status: "ready"})
	}
}

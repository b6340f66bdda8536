// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file covers request correlation, access logging and panic recovery.
// Recommended order on the engine:
//
//  1. RequestID()
//  2. Logger() or RedactingLogger()
//  3. Recovery()
//
// Handlers reach the request-scoped logger with LoggerFrom(c); services get
// the same logger through zerolog.Ctx(ctx). Handlers that write a charging
// session record its id with SetSessionID so the access log line carries it.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey = "requestID"
	sessionIDKey = "sessionID"
	loggerKey    = "logger"

	requestIDHeader = "X-Request-ID"

	// maxRequestIDLength bounds client-supplied correlation ids.
	maxRequestIDLength = 128
	// maxQueryLogLength caps the bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches a correlation id to every request. A client-supplied
// X-Request-ID is reused when it is short printable ASCII; anything else is
// replaced by a fresh UUID. The id is echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// SetSessionID records the charging session a request wrote to.
func SetSessionID(c *gin.Context, id string) {
	if id != "" {
		c.Set(sessionIDKey, id)
	}
}

// Logger writes one structured access log line per request. 5xx responses
// and requests with gin errors log at error, 4xx at warn, the rest at info.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := attachLogger(c, c.Request.URL.RawQuery, c.Request.UserAgent(), c.Request.Referer())

		c.Next()

		status := c.Writer.Status()
		ev := levelFor(&l, c, status)
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if sid := c.GetString(sessionIDKey); sid != "" {
			ev = ev.Str("session_id", sid)
		}
		ev.Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Msg("request")
	}
}

// Recovery turns a panic into a JSON 500 with the standard error envelope,
// unless the handler already started writing the response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// attachLogger builds the request-scoped logger and stores it on both the gin
// context and the request context. Callers pass query, ua and referer so the
// redacting logger can scrub them first.
func attachLogger(c *gin.Context, query, ua, referer string) zerolog.Logger {
	l := log.With().
		Str("request_id", RequestIDFrom(c)).
		Str("method", c.Request.Method).
		Str("path", routeOrURL(c)).
		Str("remote_ip", c.ClientIP()).
		Str("user_agent", ua).
		Str("referer", referer).
		Str("query", truncate(query, maxQueryLogLength)).
		Int64("bytes_in", c.Request.ContentLength).
		Logger()

	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	return l
}

// LoggerFrom returns the request-scoped logger, or the global logger when no
// access log middleware ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func levelFor(l *zerolog.Logger, c *gin.Context, status int) *zerolog.Event {
	switch {
	case len(c.Errors) > 0, status >= http.StatusInternalServerError:
		return l.Error()
	case status >= http.StatusBadRequest:
		return l.Warn()
	default:
		return l.Info()
	}
}

// routeOrURL prefers the registered route; unmatched requests log the raw path.
func routeOrURL(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

// truncate cuts s to max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

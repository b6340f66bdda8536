// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for session creation. It validates
// an Idempotency-Key request header, optionally performs a lookup to detect a
// previously completed request, and annotates the request context so handlers
// can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests and the session they created (ReplayedSessionID)
//
// Persistence stays behind the IdempotencyLookup function type; the service
// layer writes the records and resolves races between concurrent retries.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a
// previously stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // string: id created by the original request
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// ReplayedSessionID returns the id created by an earlier request that carried
// the same key, when the lookup found a live record.
func ReplayedSessionID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// Scope namespaces keys per operation (e.g. "charging_sessions.create").
	Scope string
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, ^[A-Za-z0-9._~\-:]+$ is used.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the session id stored for (scope, key) when a
// still-valid record exists at now. TTL enforcement belongs to the lookup.
// Errors are treated as a miss so normal processing continues.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (sessionID string, exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the request context, and consults lookup for a prior result.
//
// Behavior:
//   - If header is absent: the middleware is a no-op.
//   - If header fails validation: responds 400 with the standard error envelope.
//   - If lookup finds a record: ReplayedSessionID reports the stored id.
//   - Always invokes the next handler unless validation fails.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			id, exists, err := lookup(c.Request.Context(), opts.Scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			} else if exists && id != "" {
				c.Set(ctxKeyIdemReplay, id)
			}
		}

		c.Next()
	}
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestHelpers_GetIdempotencyKey_ReplayedSessionID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if _, ok := ReplayedSessionID(c); ok {
		t.Fatalf("expected no replay by default")
	}

	// Wrong types must not panic and read as absent.
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("expected GetIdempotencyKey to be absent for non-string value")
	}
	c.Set(ctxKeyIdemReplay, true)
	if _, ok := ReplayedSessionID(c); ok {
		t.Fatalf("expected ReplayedSessionID absent for non-string value")
	}

	c.Set(ctxKeyIdemReplay, "s-1")
	if id, ok := ReplayedSessionID(c); !ok || id != "s-1" {
		t.Fatalf("ReplayedSessionID = %q, %v", id, ok)
	}
}

func TestIdempotencyValidator_NoHeader_NoLookupCalled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	lookupCalled := false
	lookup := func(context.Context, string, string, time.Time) (string, bool, error) {
		lookupCalled = true
		return "", false, nil
	}
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.GET("/ping", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should not be present when header missing")
		}
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if lookupCalled {
		t.Fatalf("lookup should not be called when header missing")
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern rejects spaces", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID())
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" || body["request_id"] == "" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_LookupMissHitAndError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		id      string
		exists  bool
		err     error
		wantID  string
		wantHit bool
	}{
		{name: "miss"},
		{name: "hit", id: "sess-9", exists: true, wantID: "sess-9", wantHit: true},
		{name: "error is a miss", id: "sess-9", exists: true, err: errors.New("db down")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			lookup := func(_ context.Context, scope, key string, now time.Time) (string, bool, error) {
				if scope != "charging_sessions.create" || key != "k-9" || now.IsZero() {
					t.Fatalf("lookup args: scope=%q key=%q now=%v", scope, key, now)
				}
				return tc.id, tc.exists, tc.err
			}
			r.Use(IdempotencyValidator(IdempotencyOptions{Scope: "charging_sessions.create"}, lookup))
			r.POST("/charging_sessions", func(c *gin.Context) {
				if key, ok := GetIdempotencyKey(c); !ok || key != "k-9" {
					t.Fatalf("key not stashed: %q", key)
				}
				id, ok := ReplayedSessionID(c)
				if ok != tc.wantHit || id != tc.wantID {
					t.Fatalf("ReplayedSessionID = %q, %v", id, ok)
				}
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/charging_sessions", nil)
			req.Header.Set(HeaderIdempotencyKey, "k-9")
			r.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
		})
	}
}

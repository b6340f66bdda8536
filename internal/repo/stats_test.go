package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/ev-charging-log/internal/domain"
)

func TestCountSessions(t *testing.T) {
	db := newSessionRepoDB(t, &domain.ChargingSession{})
	ctx := context.Background()

	if n, err := CountSessions(ctx, db); err != nil || n != 0 {
		t.Fatalf("empty count: n=%d err=%v", n, err)
	}
	base := time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)
	seedSession(t, db, "a", base, nil)
	seedSession(t, db, "b", base.Add(time.Hour), nil)

	if n, err := CountSessions(ctx, db); err != nil || n != 2 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
}

func TestCountSessions_Error_NoTable(t *testing.T) {
	db := newSessionRepoDB(t /* no migrations */)
	if _, err := CountSessions(context.Background(), db); err == nil {
		t.Fatalf("expected error when table missing")
	}
}

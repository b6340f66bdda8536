// Package repo implements the data persistence layer for charging sessions,
// backed by GORM. This file provides repository functions for the
// ChargingSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, so callers can
// pass either the root handle or a transaction/connection-scoped one. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// Error semantics:
//   - UpdateSession and GetSession return ErrNotFound when no row matches.
//   - CreateSession returns ErrDuplicate when (vehicle_id, start_time) is taken.
//   - Every other DB error is propagated unchanged.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/ev-charging-log/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

const sessionsTable = "charging_sessions"

// listOrder puts the most recent session first; created_at breaks ties so the
// order is stable for sessions sharing a start time.
const listOrder = "start_time DESC, created_at DESC"

// CreateSession inserts one charging session built from values, which maps
// column names to decoded values. The id is a random UUID and created_at is
// the current UTC time; both override anything present in values.
func CreateSession(ctx context.Context, db *gorm.DB, values map[string]any) (*domain.ChargingSession, error) {
	row := make(map[string]any, len(values)+2)
	for col, v := range values {
		if _, ok := domain.LookupColumn(col); !ok {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		row[col] = v
	}
	id := uuid.NewString()
	row["id"] = id
	row["created_at"] = time.Now().UTC()

	if err := db.WithContext(ctx).Model(&domain.ChargingSession{}).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return GetSession(ctx, db, id)
}

// GetSession fetches a single session by id, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChargingSession, error) {
	var s domain.ChargingSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns every session, most recent start time first.
func ListSessions(ctx context.Context, db *gorm.DB) ([]domain.ChargingSession, error) {
	out := []domain.ChargingSession{}
	err := db.WithContext(ctx).Order(listOrder).Find(&out).Error
	return out, err
}

// ListSessionsPage returns a slice of the ListSessions ordering.
// The caller is responsible for computing offset and limit.
func ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChargingSession, error) {
	out := []domain.ChargingSession{}
	err := db.WithContext(ctx).
		Order(listOrder).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LocationRow is one distinct (provider, city, location_detail) combination.
type LocationRow struct {
	Provider       string
	City           *string
	LocationDetail *string
}

// ListLocations returns the distinct provider/city/location_detail triples of
// rows that have a provider, ordered by all three columns.
func ListLocations(ctx context.Context, db *gorm.DB) ([]LocationRow, error) {
	out := []LocationRow{}
	err := db.WithContext(ctx).
		Model(&domain.ChargingSession{}).
		Select("provider, city, location_detail").
		Where("provider IS NOT NULL").
		Group("provider, city, location_detail").
		Order("provider, city, location_detail").
		Scan(&out).Error
	return out, err
}

// ListNotes returns the distinct notes that are neither NULL nor blank,
// in ascending order.
func ListNotes(ctx context.Context, db *gorm.DB) ([]string, error) {
	out := []string{}
	err := db.WithContext(ctx).
		Model(&domain.ChargingSession{}).
		Where("notes IS NOT NULL AND TRIM(notes) <> ''").
		Order("notes ASC").
		Distinct().
		Pluck("notes", &out).Error
	return out, err
}

// BuildUpdate renders the UPDATE statement for set against the row with id.
// Every key of set must be an allow-listed mutable column; values are always
// emitted as placeholders. Columns are rendered in sorted order.
func BuildUpdate(id string, set map[string]any) (string, []any, error) {
	if len(set) == 0 {
		return "", nil, errors.New("update has no columns")
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		c, ok := domain.MutableColumn(col)
		if !ok {
			return "", nil, fmt.Errorf("column %q is not updatable", col)
		}
		cols = append(cols, c.Name)
	}
	sort.Strings(cols)

	b := sq.Update(sessionsTable)
	for _, col := range cols {
		b = b.Set(col, set[col])
	}
	return b.Where(sq.Eq{"id": id}).ToSql()
}

// UpdateSession applies set to the row with id in a single statement. The
// affected-row count is the existence check: zero rows yields ErrNotFound.
func UpdateSession(ctx context.Context, db *gorm.DB, id string, set map[string]any) error {
	query, args, err := BuildUpdate(id, set)
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// Package repo implements the data persistence layer for charging sessions,
// backed by GORM. This file provides small aggregate queries used for list
// metadata in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/ev-charging-log/internal/domain"
)

// CountSessions returns the total number of stored charging sessions.
func CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ChargingSession{}).Count(&total).Error
	return total, err
}

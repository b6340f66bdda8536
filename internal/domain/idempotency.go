package domain

import "time"

// Idempotency records the outcome of a create request that carried an
// Idempotency-Key header, keyed by (scope, key). A replay of the same key
// within the TTL returns the stored SessionID instead of inserting again.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Scope     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_scope_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_scope_key,priority:2"`
	SessionID string    `gorm:"type:varchar(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency_keys" }

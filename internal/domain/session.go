// Package domain defines the persistence model for charging session records.
// The type is mapped with GORM and shared across the repository, service and
// HTTP layers.
package domain

import "time"

// DefaultCurrency is used when a create payload omits the currency key and no
// other default has been configured.
const DefaultCurrency = "HUF"

// ChargingSession is one charging event for one vehicle.
//
// Every optional column is a pointer so that NULL survives a round trip and
// serializes as JSON null. Timestamps are stored in UTC and marshal as RFC 3339.
//
// (VehicleID, StartTime) is unique: the same vehicle cannot start two sessions
// at the same instant, which turns accidental double submissions into a
// conflict rather than a second row.
type ChargingSession struct {
	ID              string     `json:"id"               gorm:"type:varchar(36);primaryKey"`
	VehicleID       *string    `json:"vehicle_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_vehicle_start,priority:1"`
	LicensePlate    *string    `json:"license_plate"    gorm:"type:varchar(32)"`
	StartTime       *time.Time `json:"start_time"       gorm:"not null;index:idx_sessions_start;uniqueIndex:ux_vehicle_start,priority:2"`
	EndTime         *time.Time `json:"end_time"`
	KWh             *float64   `json:"kwh"              gorm:"column:kwh;not null"`
	DurationSeconds *int64     `json:"duration_seconds"`
	CostHUF         *float64   `json:"cost_huf"         gorm:"column:cost_huf;not null"`
	PricePerKWh     *float64   `json:"price_per_kwh"    gorm:"column:price_per_kwh"`
	Source          *string    `json:"source"           gorm:"type:varchar(64);not null"`
	Currency        *string    `json:"currency"         gorm:"type:varchar(3)"`
	InvoiceID       *string    `json:"invoice_id"       gorm:"type:varchar(128)"`
	Notes           *string    `json:"notes"            gorm:"type:text"`
	Odometer        *float64   `json:"odometer"`
	Provider        *string    `json:"provider"         gorm:"type:varchar(128);index:idx_sessions_location,priority:1"`
	City            *string    `json:"city"             gorm:"type:varchar(128);index:idx_sessions_location,priority:2"`
	LocationDetail  *string    `json:"location_detail"  gorm:"type:varchar(255)"`
	ACOrDC          *string    `json:"ac_or_dc"         gorm:"column:ac_or_dc;type:varchar(8)"`
	KW              *float64   `json:"kw"               gorm:"column:kw"`
	CreatedAt       time.Time  `json:"created_at"       gorm:"not null;autoCreateTime:false"`
}

// TableName returns the database table name for ChargingSession.
func (ChargingSession) TableName() string { return "charging_sessions" }

package models

import "time"

// DriveSession is one continuous period of ECU-online activity for a vehicle.
// A session is created on an offline→online edge for a linked device and is
// immutable once closed. Historical sessions stay attached to the vehicle even
// if the observing device is later unlinked or deleted.
type DriveSession struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	VehicleID uint   `gorm:"index" json:"vehicle_id"`
	DeviceID  string `gorm:"size:64;index" json:"device_id"`

	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationSeconds *int64     `json:"duration_seconds"`

	StartOdometer *float64 `json:"start_odometer"`
	EndOdometer   *float64 `json:"end_odometer"`
	Distance      *float64 `json:"distance"`

	// Aggregates computed once at close; nil means "no readings in the
	// window", which is distinct from a reading of zero.
	AvgSpeed       *float64 `json:"avg_speed"`
	MaxSpeed       *float64 `json:"max_speed"`
	AvgRPM         *float64 `gorm:"column:avg_rpm" json:"avg_rpm"`
	MaxRPM         *float64 `gorm:"column:max_rpm" json:"max_rpm"`
	AvgCoolantTemp *float64 `json:"avg_coolant_temp"`
	MaxCoolantTemp *float64 `json:"max_coolant_temp"`
	AvgThrottle    *float64 `json:"avg_throttle"`
	MaxThrottle    *float64 `json:"max_throttle"`
	AvgFuelLevel   *float64 `json:"avg_fuel_level"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the session has not been closed yet.
func (s *DriveSession) IsOpen() bool {
	return s.EndedAt == nil
}

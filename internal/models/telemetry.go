package models

import "time"

// TelemetrySample is one append-only time-series reading, keyed by vehicle +
// parameter + timestamp. Samples are written per message and never updated.
type TelemetrySample struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	VehicleID uint      `gorm:"index:idx_samples_vehicle_key_ts,priority:1" json:"vehicle_id"`
	DeviceID  string    `gorm:"size:64" json:"device_id"`
	Key       string    `gorm:"size:64;index:idx_samples_vehicle_key_ts,priority:2" json:"key"`
	Value     float64   `json:"value"`
	Unit      string    `gorm:"size:16" json:"unit"`
	Timestamp time.Time `gorm:"index:idx_samples_vehicle_key_ts,priority:3" json:"timestamp"`
}

// Aggregate is the result of a time-range rollup over one parameter.
type Aggregate struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int64   `json:"count"`
}

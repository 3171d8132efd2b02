package models

import "time"

// AlertThreshold defines a per-vehicle bound on one telemetry parameter.
// Violations are dispatched to the notification sink under the configured
// cooldown.
type AlertThreshold struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VehicleID    uint      `gorm:"index:idx_thresholds_vehicle_key,priority:1" json:"vehicle_id"`
	ParameterKey string    `gorm:"size:64;index:idx_thresholds_vehicle_key,priority:2" json:"parameter_key"`
	MinValue     *float64  `json:"min_value"`
	MaxValue     *float64  `json:"max_value"`
	Message      string    `gorm:"size:255" json:"message"`
	Enabled      bool      `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Violation reports whether the value breaks the threshold and which bound it
// broke.
func (t *AlertThreshold) Violation(value float64) (bool, string) {
	if t.MinValue != nil && value < *t.MinValue {
		return true, "min"
	}
	if t.MaxValue != nil && value > *t.MaxValue {
		return true, "max"
	}
	return false, ""
}

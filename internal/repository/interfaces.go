// Package repository defines the persistence contracts the core depends on
// and their gorm implementations. Not-found is a nil result, not an error:
// callers on the ingestion hot path treat absence as a normal outcome and
// reserve errors for storage faults.
package repository

import (
	"time"

	"wican-bridge/internal/models"
)

// DeviceRepository owns Device rows.
type DeviceRepository interface {
	// Find returns (nil, nil) when the device does not exist.
	Find(deviceID string) (*models.Device, error)
	// FirstOrCreate inserts the device unless a row with the same id already
	// exists. Safe to call concurrently from both ingestion transports for
	// the same id; the primary-key conflict serializes the race.
	FirstOrCreate(d *models.Device) (created bool, err error)
	Save(d *models.Device) error
	Patch(deviceID string, p *models.DevicePatch) error
	// Delete reports whether a row was removed.
	Delete(deviceID string) (bool, error)
	List() ([]models.Device, error)
	Counts() (*models.DeviceCounts, error)
	// SetTokenHash sets or clears (nil) the per-device credential hash.
	SetTokenHash(deviceID string, hash *string) (bool, error)

	// AssignSession points the device at its newly opened session and marks
	// the ECU online.
	AssignSession(deviceID string, sessionID uint) error
	// ClearSession atomically clears the session pointer and marks the ECU
	// offline, but only if the pointer still references sessionID. The
	// returned flag is the compare-and-swap outcome: false means another
	// path (live ingestion vs. timeout sweep) already closed the session.
	ClearSession(deviceID string, sessionID uint) (bool, error)
	// StaleInSession lists devices holding an open session whose last_seen
	// predates the cutoff.
	StaleInSession(cutoff time.Time) ([]models.Device, error)
	// MarkOfflineBefore flips device_status to offline for online devices
	// silent since before the cutoff.
	MarkOfflineBefore(cutoff time.Time) (int64, error)
}

// SessionRepository owns DriveSession rows.
type SessionRepository interface {
	// Find returns (nil, nil) when the session does not exist.
	Find(id uint) (*models.DriveSession, error)
	Create(s *models.DriveSession) error
	Save(s *models.DriveSession) error
	ForVehicle(vehicleID uint, limit int) ([]models.DriveSession, error)
}

// TelemetryRepository is the time-series store contract the core requires.
type TelemetryRepository interface {
	Insert(s *models.TelemetrySample) error
	// Latest returns the most recent sample for any of the given keys, or
	// (nil, nil) when the vehicle has none. Keys match case-insensitively.
	Latest(vehicleID uint, keys []string) (*models.TelemetrySample, error)
	// AggregateRange rolls up one parameter over [start, end], matching the
	// key case-insensitively. Count is zero when the window is empty.
	AggregateRange(vehicleID uint, key string, start, end time.Time) (*models.Aggregate, error)
	// DeleteBefore prunes samples older than the cutoff (retention sweep).
	DeleteBefore(cutoff time.Time) (int64, error)
}

// SettingsRepository reads and writes the polled app_settings table.
type SettingsRepository interface {
	// Get returns "" when the key is absent.
	Get(key string) (string, error)
	Set(key, value string) error
	// LoadBroker parses the settings rows into a typed snapshot with
	// defaults applied.
	LoadBroker() (*models.BrokerSettings, error)
}

// ThresholdRepository reads alert threshold configuration.
type ThresholdRepository interface {
	ForParameter(vehicleID uint, parameterKey string) ([]models.AlertThreshold, error)
}

// Package telemetry wraps the time-series store: sample writes, latest-value
// lookups, range aggregation and threshold alerting.
package telemetry

import (
	"context"
	"strings"
	"time"

	"wican-bridge/internal/alert"
	"wican-bridge/internal/models"
	rediskeys "wican-bridge/internal/redis"
	"wican-bridge/internal/repository"
	"wican-bridge/internal/utils"
)

// NormalizeKey converts a raw reading name into the canonical parameter key:
// uppercase with spaces collapsed to underscores.
func NormalizeKey(raw string) string {
	key := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(key, " ", "_")
}

// CooldownLatch rate-limits alert dispatch per vehicle/parameter pair.
type CooldownLatch interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) bool
}

type Service struct {
	samples    repository.TelemetryRepository
	thresholds repository.ThresholdRepository
	settings   repository.SettingsRepository
	cooldown   CooldownLatch
	notifier   alert.Notifier
}

func NewService(
	samples repository.TelemetryRepository,
	thresholds repository.ThresholdRepository,
	settings repository.SettingsRepository,
	cooldown CooldownLatch,
	notifier alert.Notifier,
) *Service {
	return &Service{
		samples:    samples,
		thresholds: thresholds,
		settings:   settings,
		cooldown:   cooldown,
		notifier:   notifier,
	}
}

// StoreSample appends one reading. The key is normalized before writing so
// range queries and threshold lookups see a single spelling.
func (s *Service) StoreSample(vehicleID uint, deviceID, key string, value float64, unit string, at time.Time) error {
	return s.samples.Insert(&models.TelemetrySample{
		VehicleID: vehicleID,
		DeviceID:  deviceID,
		Key:       NormalizeKey(key),
		Value:     value,
		Unit:      unit,
		Timestamp: at,
	})
}

// LatestValue returns the most recent sample for any of the keys, or nil.
func (s *Service) LatestValue(vehicleID uint, keys []string) (*models.TelemetrySample, error) {
	return s.samples.Latest(vehicleID, keys)
}

// AggregateRange rolls up one parameter over the window.
func (s *Service) AggregateRange(vehicleID uint, key string, start, end time.Time) (*models.Aggregate, error) {
	return s.samples.AggregateRange(vehicleID, key, start, end)
}

// CheckThresholds tests the value against the vehicle's configured bounds and
// dispatches violations to the notification sink under the global cooldown.
// Fire-and-forget: failures are logged, never propagated to ingestion.
func (s *Service) CheckThresholds(ctx context.Context, vehicleID uint, key string, value float64) {
	key = NormalizeKey(key)

	thresholds, err := s.thresholds.ForParameter(vehicleID, key)
	if err != nil {
		utils.Logger.Errorf("threshold lookup failed for vehicle %d %s: %v", vehicleID, key, err)
		return
	}

	for _, threshold := range thresholds {
		violated, bound := threshold.Violation(value)
		if !violated {
			continue
		}

		if !s.cooldown.Acquire(ctx, rediskeys.AlertCooldownKey(vehicleID, key), s.alertCooldown()) {
			utils.Logger.Debugf("alert for vehicle %d %s suppressed by cooldown", vehicleID, key)
			continue
		}

		limit := 0.0
		if bound == "min" && threshold.MinValue != nil {
			limit = *threshold.MinValue
		} else if threshold.MaxValue != nil {
			limit = *threshold.MaxValue
		}

		event := alert.Event{
			VehicleID: vehicleID,
			Parameter: key,
			Value:     value,
			Bound:     bound,
			Limit:     limit,
			Message:   threshold.Message,
			At:        time.Now().UTC(),
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			utils.Logger.Errorf("alert dispatch failed for vehicle %d %s: %v", vehicleID, key, err)
		}
	}
}

// alertCooldown reads the configured cooldown. Violations are rare, so one
// settings read per violation is fine.
func (s *Service) alertCooldown() time.Duration {
	settings, err := s.settings.LoadBroker()
	if err != nil {
		return time.Duration(repository.DefaultAlertCooldownMinutes) * time.Minute
	}
	return settings.AlertCooldown
}

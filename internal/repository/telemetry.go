package repository

import (
	"errors"
	"strings"
	"time"

	"wican-bridge/internal/models"

	"gorm.io/gorm"
)

type telemetryRepository struct {
	db *gorm.DB
}

func NewTelemetryRepository(db *gorm.DB) TelemetryRepository {
	return &telemetryRepository{db: db}
}

func (r *telemetryRepository) Insert(s *models.TelemetrySample) error {
	return r.db.Create(s).Error
}

func (r *telemetryRepository) Latest(vehicleID uint, keys []string) (*models.TelemetrySample, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	upper := make([]string, len(keys))
	for i, k := range keys {
		upper[i] = strings.ToUpper(k)
	}

	var sample models.TelemetrySample
	err := r.db.
		Where("vehicle_id = ? AND UPPER(key) IN ?", vehicleID, upper).
		Order("timestamp DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (r *telemetryRepository) AggregateRange(vehicleID uint, key string, start, end time.Time) (*models.Aggregate, error) {
	var agg models.Aggregate
	err := r.db.Model(&models.TelemetrySample{}).
		Select("COALESCE(MIN(value), 0) AS min, COALESCE(MAX(value), 0) AS max, COALESCE(AVG(value), 0) AS avg, COUNT(*) AS count").
		Where("vehicle_id = ? AND UPPER(key) = ? AND timestamp >= ? AND timestamp <= ?",
			vehicleID, strings.ToUpper(key), start, end).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *telemetryRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("timestamp < ?", cutoff).Delete(&models.TelemetrySample{})
	return res.RowsAffected, res.Error
}

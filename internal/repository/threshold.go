package repository

import (
	"strings"

	"wican-bridge/internal/models"

	"gorm.io/gorm"
)

type thresholdRepository struct {
	db *gorm.DB
}

func NewThresholdRepository(db *gorm.DB) ThresholdRepository {
	return &thresholdRepository{db: db}
}

func (r *thresholdRepository) ForParameter(vehicleID uint, parameterKey string) ([]models.AlertThreshold, error) {
	var thresholds []models.AlertThreshold
	err := r.db.
		Where("vehicle_id = ? AND UPPER(parameter_key) = ? AND enabled = ?",
			vehicleID, strings.ToUpper(parameterKey), true).
		Find(&thresholds).Error
	if err != nil {
		return nil, err
	}
	return thresholds, nil
}

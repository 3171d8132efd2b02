package repository

import (
	"errors"

	"wican-bridge/internal/models"

	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Find(id uint) (*models.DriveSession, error) {
	var session models.DriveSession
	err := r.db.First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Create(s *models.DriveSession) error {
	return r.db.Create(s).Error
}

func (r *sessionRepository) Save(s *models.DriveSession) error {
	return r.db.Save(s).Error
}

func (r *sessionRepository) ForVehicle(vehicleID uint, limit int) ([]models.DriveSession, error) {
	var sessions []models.DriveSession
	q := r.db.Where("vehicle_id = ?", vehicleID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

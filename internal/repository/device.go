package repository

import (
	"errors"
	"time"

	"wican-bridge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) Find(deviceID string) (*models.Device, error) {
	var device models.Device
	err := r.db.Where("device_id = ?", deviceID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepository) FirstOrCreate(d *models.Device) (bool, error) {
	// ON CONFLICT DO NOTHING on the primary key serializes concurrent
	// auto-discovery of the same device from both transports.
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoNothing: true,
	}).Create(d)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *deviceRepository) Save(d *models.Device) error {
	return r.db.Save(d).Error
}

func (r *deviceRepository) Patch(deviceID string, p *models.DevicePatch) error {
	cols := p.Columns()
	if len(cols) == 0 {
		return nil
	}
	return r.db.Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Updates(cols).Error
}

func (r *deviceRepository) Delete(deviceID string) (bool, error) {
	res := r.db.Where("device_id = ?", deviceID).Delete(&models.Device{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *deviceRepository) List() ([]models.Device, error) {
	var devices []models.Device
	if err := r.db.Order("device_id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *deviceRepository) Counts() (*models.DeviceCounts, error) {
	counts := &models.DeviceCounts{}
	model := r.db.Model(&models.Device{})

	if err := model.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	if err := model.Session(&gorm.Session{}).
		Where("device_status = ?", models.DeviceStatusOnline).
		Count(&counts.Online).Error; err != nil {
		return nil, err
	}
	if err := model.Session(&gorm.Session{}).
		Where("vehicle_id IS NOT NULL").
		Count(&counts.Linked).Error; err != nil {
		return nil, err
	}
	counts.Offline = counts.Total - counts.Online
	return counts, nil
}

func (r *deviceRepository) SetTokenHash(deviceID string, hash *string) (bool, error) {
	res := r.db.Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Update("token_hash", hash)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *deviceRepository) AssignSession(deviceID string, sessionID uint) error {
	return r.db.Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]interface{}{
			"current_session_id": sessionID,
			"ecu_status":         models.ECUStatusOnline,
		}).Error
}

func (r *deviceRepository) ClearSession(deviceID string, sessionID uint) (bool, error) {
	// The WHERE on current_session_id is the whole concurrency story:
	// whichever of the live close and the timeout sweep commits first wins,
	// the loser sees zero rows and backs off.
	res := r.db.Model(&models.Device{}).
		Where("device_id = ? AND current_session_id = ?", deviceID, sessionID).
		Updates(map[string]interface{}{
			"current_session_id": nil,
			"ecu_status":         models.ECUStatusOffline,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *deviceRepository) StaleInSession(cutoff time.Time) ([]models.Device, error) {
	var devices []models.Device
	err := r.db.
		Where("current_session_id IS NOT NULL AND last_seen IS NOT NULL AND last_seen < ?", cutoff).
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *deviceRepository) MarkOfflineBefore(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.Device{}).
		Where("device_status = ? AND last_seen IS NOT NULL AND last_seen < ?",
			models.DeviceStatusOnline, cutoff).
		Update("device_status", models.DeviceStatusOffline)
	return res.RowsAffected, res.Error
}

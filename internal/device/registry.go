// Package device is the registry over telemetry gateway identity: discovery,
// vehicle linkage, status tracking and credential management.
package device

import (
	"time"

	"wican-bridge/internal/auth"
	"wican-bridge/internal/models"
	"wican-bridge/internal/repository"
	"wican-bridge/internal/utils"
)

// Registry manages Device rows. All lookups go through the canonical device
// id normalization, so the two ingestion transports cannot disagree on a key.
type Registry struct {
	devices  repository.DeviceRepository
	settings repository.SettingsRepository
}

func NewRegistry(devices repository.DeviceRepository, settings repository.SettingsRepository) *Registry {
	return &Registry{
		devices:  devices,
		settings: settings,
	}
}

// ValidateToken checks a bearer token. The per-device credential, when set,
// takes precedence over the global one for that device; every absence or
// mismatch is just false, never an error.
func (r *Registry) ValidateToken(token, deviceIDHint string) bool {
	if token == "" {
		return false
	}
	provided := auth.HashToken(token)

	if id := utils.NormalizeDeviceID(deviceIDHint); id != "" {
		device, err := r.devices.Find(id)
		if err != nil {
			utils.Logger.Errorf("token lookup failed for device %s: %v", id, err)
			return false
		}
		if device != nil && device.TokenHash != nil {
			return auth.Compare(provided, *device.TokenHash)
		}
	}

	stored, err := r.settings.Get(repository.SettingGlobalTokenHash)
	if err != nil {
		utils.Logger.Errorf("global token lookup failed: %v", err)
		return false
	}
	return auth.Compare(provided, stored)
}

// AutoDiscover upserts the device on contact. Unseen ids get an unlinked,
// enabled row; known ids get their version/IP metadata and last_seen
// refreshed. Idempotent and safe under concurrent calls for the same id.
func (r *Registry) AutoDiscover(deviceID string, meta *models.VersionMeta) (*models.Device, bool, error) {
	id := utils.NormalizeDeviceID(deviceID)
	if id == "" {
		return nil, false, nil
	}

	now := time.Now().UTC()
	candidate := &models.Device{
		DeviceID:     id,
		DeviceStatus: models.DeviceStatusOnline,
		ECUStatus:    models.ECUStatusUnknown,
		Enabled:      true,
		LastSeen:     &now,
	}
	if meta != nil {
		candidate.HardwareVersion = meta.HardwareVersion
		candidate.FirmwareVersion = meta.FirmwareVersion
		candidate.BuildVersion = meta.BuildVersion
		candidate.StaIP = meta.StaIP
	}

	created, err := r.devices.FirstOrCreate(candidate)
	if err != nil {
		return nil, false, err
	}

	if !created {
		online := models.DeviceStatusOnline
		patch := &models.DevicePatch{
			DeviceStatus: &online,
			LastSeen:     &now,
		}
		if meta != nil {
			if meta.HardwareVersion != "" {
				patch.HardwareVersion = &meta.HardwareVersion
			}
			if meta.FirmwareVersion != "" {
				patch.FirmwareVersion = &meta.FirmwareVersion
			}
			if meta.BuildVersion != "" {
				patch.BuildVersion = &meta.BuildVersion
			}
			if meta.StaIP != "" {
				patch.StaIP = &meta.StaIP
			}
		}
		if err := r.devices.Patch(id, patch); err != nil {
			return nil, false, err
		}
	}

	device, err := r.devices.Find(id)
	if err != nil {
		return nil, false, err
	}
	return device, created, nil
}

// LinkToVehicle attaches the device to a vehicle. False when the device is
// unknown.
func (r *Registry) LinkToVehicle(deviceID string, vehicleID uint) (bool, error) {
	device, err := r.devices.Find(utils.NormalizeDeviceID(deviceID))
	if err != nil || device == nil {
		return false, err
	}
	device.VehicleID = &vehicleID
	if err := r.devices.Save(device); err != nil {
		return false, err
	}
	return true, nil
}

// Unlink detaches the device from its vehicle and drops the open-session
// pointer. Historical sessions stay attached to the vehicle.
func (r *Registry) Unlink(deviceID string) (bool, error) {
	device, err := r.devices.Find(utils.NormalizeDeviceID(deviceID))
	if err != nil || device == nil {
		return false, err
	}
	device.VehicleID = nil
	device.CurrentSessionID = nil
	if err := r.devices.Save(device); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus applies a partial status update; absent fields stay unchanged.
func (r *Registry) UpdateStatus(deviceID string, patch *models.DevicePatch) error {
	return r.devices.Patch(utils.NormalizeDeviceID(deviceID), patch)
}

// SetOffline marks the gateway offline, used when a transport detects a
// disconnect without an explicit payload.
func (r *Registry) SetOffline(deviceID string) error {
	offline := models.DeviceStatusOffline
	return r.UpdateStatus(deviceID, &models.DevicePatch{DeviceStatus: &offline})
}

// GenerateDeviceToken issues a fresh per-device credential. The plaintext is
// returned exactly once; only the hash is stored. Empty string when the
// device is unknown.
func (r *Registry) GenerateDeviceToken(deviceID string) (string, error) {
	id := utils.NormalizeDeviceID(deviceID)
	token, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}
	hash := auth.HashToken(token)
	ok, err := r.devices.SetTokenHash(id, &hash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	utils.Logger.Infof("issued device token %s for %s", auth.MaskToken(token), id)
	return token, nil
}

// RevokeDeviceToken clears the per-device credential; the device falls back
// to the global token. False when the device is unknown.
func (r *Registry) RevokeDeviceToken(deviceID string) (bool, error) {
	return r.devices.SetTokenHash(utils.NormalizeDeviceID(deviceID), nil)
}

// RotateGlobalToken replaces the global credential and returns the new
// plaintext exactly once.
func (r *Registry) RotateGlobalToken() (string, error) {
	token, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}
	if err := r.settings.Set(repository.SettingGlobalTokenHash, auth.HashToken(token)); err != nil {
		return "", err
	}
	utils.Logger.Infof("rotated global token %s", auth.MaskToken(token))
	return token, nil
}

// Get returns the device or nil.
func (r *Registry) Get(deviceID string) (*models.Device, error) {
	return r.devices.Find(utils.NormalizeDeviceID(deviceID))
}

// List returns every device plus the operator counts.
func (r *Registry) List() ([]models.Device, *models.DeviceCounts, error) {
	devices, err := r.devices.List()
	if err != nil {
		return nil, nil, err
	}
	counts, err := r.devices.Counts()
	if err != nil {
		return nil, nil, err
	}
	return devices, counts, nil
}

// Delete removes the device row. Sessions and telemetry survive: they are
// keyed by vehicle, not by device.
func (r *Registry) Delete(deviceID string) (bool, error) {
	return r.devices.Delete(utils.NormalizeDeviceID(deviceID))
}

package models

import "time"

// Device status values (gateway reachability)
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// ECU status values (engine control unit reachability as reported by the gateway)
const (
	ECUStatusOnline  = "online"
	ECUStatusOffline = "offline"
	ECUStatusUnknown = "unknown"
)

// Device is a physical telemetry gateway. The device id is the canonical
// normalized key produced by utils.NormalizeDeviceID; rows are created by
// auto-discovery on first contact.
type Device struct {
	DeviceID         string     `gorm:"primaryKey;size:64" json:"device_id"`
	VehicleID        *uint      `gorm:"index" json:"vehicle_id"`
	DeviceStatus     string     `gorm:"size:16;default:offline" json:"device_status"`
	ECUStatus        string     `gorm:"column:ecu_status;size:16;default:unknown" json:"ecu_status"`
	RSSI             *int       `json:"rssi"`
	BatteryVoltage   *float64   `json:"battery_voltage"`
	StaIP            string     `gorm:"size:64" json:"sta_ip"`
	LastSeen         *time.Time `gorm:"index" json:"last_seen"`
	HardwareVersion  string     `gorm:"size:64" json:"hardware_version"`
	FirmwareVersion  string     `gorm:"size:64" json:"firmware_version"`
	BuildVersion     string     `gorm:"size:64" json:"build_version"`
	TokenHash        *string    `gorm:"size:128" json:"-"`
	Enabled          bool       `gorm:"default:true" json:"enabled"`
	CurrentSessionID *uint      `json:"current_session_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsLinked reports whether the device is attached to a vehicle. Telemetry from
// unlinked devices is tracked for status but never stored or aggregated.
func (d *Device) IsLinked() bool {
	return d.VehicleID != nil
}

// DevicePatch is a partial update of mutable device status fields. A nil field
// means "leave unchanged"; this is the single merge point for all ingress
// paths, so a zero value can never be mistaken for absence.
type DevicePatch struct {
	DeviceStatus    *string
	ECUStatus       *string
	RSSI            *int
	BatteryVoltage  *float64
	StaIP           *string
	LastSeen        *time.Time
	HardwareVersion *string
	FirmwareVersion *string
	BuildVersion    *string
	Enabled         *bool
}

// Apply merges the patch into the device in memory.
func (p *DevicePatch) Apply(d *Device) {
	if p.DeviceStatus != nil {
		d.DeviceStatus = *p.DeviceStatus
	}
	if p.ECUStatus != nil {
		d.ECUStatus = *p.ECUStatus
	}
	if p.RSSI != nil {
		d.RSSI = p.RSSI
	}
	if p.BatteryVoltage != nil {
		d.BatteryVoltage = p.BatteryVoltage
	}
	if p.StaIP != nil {
		d.StaIP = *p.StaIP
	}
	if p.LastSeen != nil {
		d.LastSeen = p.LastSeen
	}
	if p.HardwareVersion != nil {
		d.HardwareVersion = *p.HardwareVersion
	}
	if p.FirmwareVersion != nil {
		d.FirmwareVersion = *p.FirmwareVersion
	}
	if p.BuildVersion != nil {
		d.BuildVersion = *p.BuildVersion
	}
	if p.Enabled != nil {
		d.Enabled = *p.Enabled
	}
}

// Columns returns the patch as a gorm update map.
func (p *DevicePatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.DeviceStatus != nil {
		cols["device_status"] = *p.DeviceStatus
	}
	if p.ECUStatus != nil {
		cols["ecu_status"] = *p.ECUStatus
	}
	if p.RSSI != nil {
		cols["rssi"] = *p.RSSI
	}
	if p.BatteryVoltage != nil {
		cols["battery_voltage"] = *p.BatteryVoltage
	}
	if p.StaIP != nil {
		cols["sta_ip"] = *p.StaIP
	}
	if p.LastSeen != nil {
		cols["last_seen"] = *p.LastSeen
	}
	if p.HardwareVersion != nil {
		cols["hardware_version"] = *p.HardwareVersion
	}
	if p.FirmwareVersion != nil {
		cols["firmware_version"] = *p.FirmwareVersion
	}
	if p.BuildVersion != nil {
		cols["build_version"] = *p.BuildVersion
	}
	if p.Enabled != nil {
		cols["enabled"] = *p.Enabled
	}
	return cols
}

// VersionMeta carries the optional identity metadata a gateway reports on each
// contact (auto-discovery refresh).
type VersionMeta struct {
	HardwareVersion string
	FirmwareVersion string
	BuildVersion    string
	StaIP           string
}

// DeviceCounts is the operator summary returned with device listings.
type DeviceCounts struct {
	Total   int64 `json:"total"`
	Online  int64 `json:"online"`
	Offline int64 `json:"offline"`
	Linked  int64 `json:"linked"`
}

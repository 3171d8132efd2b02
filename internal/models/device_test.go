package models

import (
	"testing"
	"time"
)

func TestDevicePatchApplyLeavesAbsentFieldsUnchanged(t *testing.T) {
	rssi := -67
	seen := time.Now().UTC()
	d := Device{
		DeviceID:        "aa11bb22cc33",
		DeviceStatus:    DeviceStatusOffline,
		ECUStatus:       ECUStatusUnknown,
		RSSI:            &rssi,
		FirmwareVersion: "1.0.0",
		Enabled:         true,
		LastSeen:        &seen,
	}

	online := DeviceStatusOnline
	voltage := 12.6
	patch := DevicePatch{
		DeviceStatus:   &online,
		BatteryVoltage: &voltage,
	}
	patch.Apply(&d)

	if d.DeviceStatus != DeviceStatusOnline {
		t.Errorf("device_status not applied: %s", d.DeviceStatus)
	}
	if d.BatteryVoltage == nil || *d.BatteryVoltage != 12.6 {
		t.Errorf("battery_voltage not applied: %v", d.BatteryVoltage)
	}
	// absent fields must survive untouched
	if d.ECUStatus != ECUStatusUnknown || d.FirmwareVersion != "1.0.0" || !d.Enabled {
		t.Error("absent patch fields must leave the device unchanged")
	}
	if d.RSSI == nil || *d.RSSI != -67 {
		t.Errorf("rssi must be unchanged: %v", d.RSSI)
	}
}

func TestDevicePatchColumnsMatchesApply(t *testing.T) {
	offline := ECUStatusOffline
	enabled := false
	patch := DevicePatch{ECUStatus: &offline, Enabled: &enabled}

	cols := patch.Columns()
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d: %v", len(cols), cols)
	}
	if cols["ecu_status"] != ECUStatusOffline {
		t.Errorf("ecu_status column: %v", cols["ecu_status"])
	}
	if cols["enabled"] != false {
		t.Errorf("enabled column: %v", cols["enabled"])
	}

	if got := (&DevicePatch{}).Columns(); len(got) != 0 {
		t.Errorf("empty patch must produce no columns, got %v", got)
	}
}

func TestIsLinked(t *testing.T) {
	d := Device{DeviceID: "aa11bb22cc33"}
	if d.IsLinked() {
		t.Error("device without vehicle must not be linked")
	}
	vid := uint(3)
	d.VehicleID = &vid
	if !d.IsLinked() {
		t.Error("device with vehicle must be linked")
	}
}

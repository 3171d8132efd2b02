// Package ingest is the core both transports feed: resolve the device, apply
// the ECU status transition, persist samples, check thresholds. The push
// gateway and the broker subscriber are thin callers into this one path.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"wican-bridge/internal/device"
	"wican-bridge/internal/models"
	"wican-bridge/internal/session"
	"wican-bridge/internal/telemetry"
	"wican-bridge/internal/utils"
)

type Processor struct {
	registry  *device.Registry
	engine    *session.Engine
	telemetry *telemetry.Service
}

func NewProcessor(registry *device.Registry, engine *session.Engine, svc *telemetry.Service) *Processor {
	return &Processor{
		registry:  registry,
		engine:    engine,
		telemetry: svc,
	}
}

// ProcessStatus applies one ECU status report. Auto-discovers the device on
// first contact; disabled devices are never processed.
func (p *Processor) ProcessStatus(deviceID string, meta *models.VersionMeta, online bool, at time.Time) error {
	d, isNew, err := p.registry.AutoDiscover(deviceID, meta)
	if err != nil {
		return err
	}
	if d == nil || !d.Enabled {
		return nil
	}
	if isNew {
		utils.Logger.Infof("discovered device %s", d.DeviceID)
	}
	return p.engine.HandleECUStatus(d.DeviceID, online, at)
}

// ProcessBattery updates the gateway's battery voltage and, when the device
// is linked, records it as a telemetry sample too.
func (p *Processor) ProcessBattery(ctx context.Context, deviceID string, meta *models.VersionMeta, voltage float64, at time.Time) error {
	d, _, err := p.registry.AutoDiscover(deviceID, meta)
	if err != nil {
		return err
	}
	if d == nil || !d.Enabled {
		return nil
	}

	if err := p.registry.UpdateStatus(d.DeviceID, &models.DevicePatch{BatteryVoltage: &voltage}); err != nil {
		return err
	}
	if !d.IsLinked() {
		return nil
	}

	if err := p.telemetry.StoreSample(*d.VehicleID, d.DeviceID, "BATTERY_VOLTAGE", voltage, "V", at); err != nil {
		return err
	}
	p.telemetry.CheckThresholds(ctx, *d.VehicleID, "BATTERY_VOLTAGE", voltage)
	return nil
}

// ProcessTelemetry stores a batch of numeric readings. Readings from unlinked
// devices keep the device row fresh but are discarded for storage and
// aggregation.
func (p *Processor) ProcessTelemetry(ctx context.Context, deviceID string, meta *models.VersionMeta, readings map[string]float64, at time.Time) error {
	d, _, err := p.registry.AutoDiscover(deviceID, meta)
	if err != nil {
		return err
	}
	if d == nil || !d.Enabled || !d.IsLinked() {
		return nil
	}

	for rawKey, value := range readings {
		key := telemetry.NormalizeKey(rawKey)
		if key == "" {
			continue
		}
		if err := p.telemetry.StoreSample(*d.VehicleID, d.DeviceID, key, value, "", at); err != nil {
			return err
		}
		p.telemetry.CheckThresholds(ctx, *d.VehicleID, key, value)
	}
	return nil
}

// NumericReadings extracts the numeric key/value pairs from a decoded JSON
// object; strings, booleans and nested values are skipped.
func NumericReadings(payload map[string]interface{}) map[string]float64 {
	readings := make(map[string]float64, len(payload))
	for key, raw := range payload {
		switch v := raw.(type) {
		case float64:
			readings[key] = v
		case json.Number:
			if n, err := v.Float64(); err == nil {
				readings[key] = n
			}
		}
	}
	return readings
}

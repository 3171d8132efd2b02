// Package session converts ECU online/offline signals into drive-session
// lifecycle events and summarizes each session's telemetry on close.
package session

import (
	"time"

	"wican-bridge/internal/models"
	"wican-bridge/internal/repository"
	"wican-bridge/internal/utils"
)

// odometerKeys are the parameter spellings that carry an odometer reading,
// checked newest-first across all of them.
var odometerKeys = []string{"ODOMETER", "ODO"}

// trackedParam binds one aggregated parameter to its session fields. Fields
// stay nil when the window has no samples for the key.
type trackedParam struct {
	key    string
	assign func(s *models.DriveSession, agg *models.Aggregate)
}

var trackedParams = []trackedParam{
	{"SPEED", func(s *models.DriveSession, a *models.Aggregate) {
		s.AvgSpeed, s.MaxSpeed = f(a.Avg), f(a.Max)
	}},
	{"RPM", func(s *models.DriveSession, a *models.Aggregate) {
		s.AvgRPM, s.MaxRPM = f(a.Avg), f(a.Max)
	}},
	{"COOLANT_TEMP", func(s *models.DriveSession, a *models.Aggregate) {
		s.AvgCoolantTemp, s.MaxCoolantTemp = f(a.Avg), f(a.Max)
	}},
	{"THROTTLE_POS", func(s *models.DriveSession, a *models.Aggregate) {
		s.AvgThrottle, s.MaxThrottle = f(a.Avg), f(a.Max)
	}},
	{"FUEL_LEVEL", func(s *models.DriveSession, a *models.Aggregate) {
		// max fuel level is not a meaningful statistic
		s.AvgFuelLevel = f(a.Avg)
	}},
}

func f(v float64) *float64 { return &v }

// Engine is the per-device session state machine. It reacts to ECU status
// edges only: repeated identical reports are no-ops, which makes it
// idempotent under duplicate and retransmitted messages.
type Engine struct {
	devices   repository.DeviceRepository
	sessions  repository.SessionRepository
	telemetry repository.TelemetryRepository
}

func NewEngine(
	devices repository.DeviceRepository,
	sessions repository.SessionRepository,
	telemetry repository.TelemetryRepository,
) *Engine {
	return &Engine{
		devices:   devices,
		sessions:  sessions,
		telemetry: telemetry,
	}
}

// HandleECUStatus applies one observed ECU status report for a device at the
// given time. The previously persisted status is the edge baseline.
func (e *Engine) HandleECUStatus(deviceID string, online bool, at time.Time) error {
	device, err := e.devices.Find(deviceID)
	if err != nil {
		return err
	}
	if device == nil || !device.Enabled {
		return nil
	}

	switch {
	case online && device.ECUStatus != models.ECUStatusOnline:
		if !device.IsLinked() {
			// track the status, but unlinked devices never get sessions
			return e.recordECUStatus(deviceID, models.ECUStatusOnline)
		}
		if device.CurrentSessionID != nil {
			// missed offline edge: self-heal by force-closing the stale
			// session at the current timestamp before opening the new one
			utils.Logger.Warnf("device %s reported online with session %d still open, force-closing",
				deviceID, *device.CurrentSessionID)
			if err := e.closeSession(device, at); err != nil {
				return err
			}
		}
		return e.startSession(device, at)

	case !online && device.ECUStatus == models.ECUStatusOnline:
		if err := e.closeSession(device, at); err != nil {
			return err
		}
		// the close path records offline only when it wins the pointer CAS;
		// make sure the status lands either way
		return e.recordECUStatus(deviceID, models.ECUStatusOffline)

	default:
		// duplicate edge (online→online, offline→offline) or unknown→offline
		status := models.ECUStatusOffline
		if online {
			status = models.ECUStatusOnline
		}
		if device.ECUStatus != status {
			return e.recordECUStatus(deviceID, status)
		}
		return nil
	}
}

// RecentSessions lists a vehicle's sessions, newest first.
func (e *Engine) RecentSessions(vehicleID uint, limit int) ([]models.DriveSession, error) {
	return e.sessions.ForVehicle(vehicleID, limit)
}

// ForceClose ends the device's open session at the given timestamp. Used by
// the timeout sweeper; a no-op when no session is open.
func (e *Engine) ForceClose(deviceID string, at time.Time) error {
	device, err := e.devices.Find(deviceID)
	if err != nil || device == nil {
		return err
	}
	return e.closeSession(device, at)
}

func (e *Engine) startSession(device *models.Device, at time.Time) error {
	session := &models.DriveSession{
		VehicleID:     *device.VehicleID,
		DeviceID:      device.DeviceID,
		StartedAt:     at,
		StartOdometer: e.latestOdometer(*device.VehicleID),
	}
	if err := e.sessions.Create(session); err != nil {
		return err
	}
	if err := e.devices.AssignSession(device.DeviceID, session.ID); err != nil {
		return err
	}
	utils.Logger.Infof("session %d started for vehicle %d (device %s)",
		session.ID, session.VehicleID, device.DeviceID)
	return nil
}

// closeSession ends the session the device currently points at. The pointer
// clear is a compare-and-swap, so a close racing the sweeper (or a late
// offline message after a sweep) collapses to a no-op.
func (e *Engine) closeSession(device *models.Device, at time.Time) error {
	if device.CurrentSessionID == nil {
		return nil
	}
	sessionID := *device.CurrentSessionID

	won, err := e.devices.ClearSession(device.DeviceID, sessionID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	session, err := e.sessions.Find(sessionID)
	if err != nil {
		return err
	}
	if session == nil || !session.IsOpen() {
		// pointer referenced a missing or already-closed session; the CAS
		// above has repaired the device row, nothing left to finalize
		return nil
	}

	ended := at
	session.EndedAt = &ended
	duration := int64(ended.Sub(session.StartedAt).Seconds())
	session.DurationSeconds = &duration

	if endOdo := e.latestOdometer(session.VehicleID); endOdo != nil {
		session.EndOdometer = endOdo
		if session.StartOdometer != nil {
			distance := *endOdo - *session.StartOdometer
			session.Distance = &distance
			if distance < 0 {
				// odometer rollback or bad sensor data; kept as-is so the
				// reporting layer can flag it
				utils.Logger.Warnf("session %d closed with negative distance %.1f", session.ID, distance)
			}
		}
	}

	e.aggregate(session, session.StartedAt, ended)

	if err := e.sessions.Save(session); err != nil {
		return err
	}
	utils.Logger.Infof("session %d closed for vehicle %d, duration %ds",
		session.ID, session.VehicleID, duration)
	return nil
}

func (e *Engine) aggregate(session *models.DriveSession, start, end time.Time) {
	for _, param := range trackedParams {
		agg, err := e.telemetry.AggregateRange(session.VehicleID, param.key, start, end)
		if err != nil {
			utils.Logger.Errorf("aggregate %s failed for session %d: %v", param.key, session.ID, err)
			continue
		}
		if agg != nil && agg.Count > 0 {
			param.assign(session, agg)
		}
	}
}

func (e *Engine) latestOdometer(vehicleID uint) *float64 {
	sample, err := e.telemetry.Latest(vehicleID, odometerKeys)
	if err != nil {
		utils.Logger.Errorf("odometer lookup failed for vehicle %d: %v", vehicleID, err)
		return nil
	}
	if sample == nil {
		return nil
	}
	return &sample.Value
}

func (e *Engine) recordECUStatus(deviceID, status string) error {
	return e.devices.Patch(deviceID, &models.DevicePatch{ECUStatus: &status})
}

package session

import (
	"sort"
	"strings"
	"testing"
	"time"

	"wican-bridge/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memDevices struct {
	rows map[string]*models.Device
}

func newMemDevices() *memDevices {
	return &memDevices{rows: map[string]*models.Device{}}
}

func (f *memDevices) Find(deviceID string) (*models.Device, error) {
	if d, ok := f.rows[deviceID]; ok {
		copy := *d
		return &copy, nil
	}
	return nil, nil
}

func (f *memDevices) FirstOrCreate(d *models.Device) (bool, error) {
	if _, ok := f.rows[d.DeviceID]; ok {
		return false, nil
	}
	copy := *d
	f.rows[d.DeviceID] = &copy
	return true, nil
}

func (f *memDevices) Save(d *models.Device) error {
	copy := *d
	f.rows[d.DeviceID] = &copy
	return nil
}

func (f *memDevices) Patch(deviceID string, p *models.DevicePatch) error {
	if d, ok := f.rows[deviceID]; ok {
		p.Apply(d)
	}
	return nil
}

func (f *memDevices) Delete(deviceID string) (bool, error) {
	if _, ok := f.rows[deviceID]; !ok {
		return false, nil
	}
	delete(f.rows, deviceID)
	return true, nil
}

func (f *memDevices) List() ([]models.Device, error) {
	ids := make([]string, 0, len(f.rows))
	for id := range f.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.rows[id])
	}
	return out, nil
}

func (f *memDevices) Counts() (*models.DeviceCounts, error) {
	counts := &models.DeviceCounts{}
	for _, d := range f.rows {
		counts.Total++
		if d.DeviceStatus == models.DeviceStatusOnline {
			counts.Online++
		} else {
			counts.Offline++
		}
		if d.VehicleID != nil {
			counts.Linked++
		}
	}
	return counts, nil
}

func (f *memDevices) SetTokenHash(deviceID string, hash *string) (bool, error) {
	d, ok := f.rows[deviceID]
	if !ok {
		return false, nil
	}
	d.TokenHash = hash
	return true, nil
}

func (f *memDevices) AssignSession(deviceID string, sessionID uint) error {
	if d, ok := f.rows[deviceID]; ok {
		sid := sessionID
		d.CurrentSessionID = &sid
		d.ECUStatus = models.ECUStatusOnline
	}
	return nil
}

func (f *memDevices) ClearSession(deviceID string, sessionID uint) (bool, error) {
	d, ok := f.rows[deviceID]
	if !ok || d.CurrentSessionID == nil || *d.CurrentSessionID != sessionID {
		return false, nil
	}
	d.CurrentSessionID = nil
	d.ECUStatus = models.ECUStatusOffline
	return true, nil
}

func (f *memDevices) StaleInSession(cutoff time.Time) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.rows {
		if d.CurrentSessionID != nil && d.LastSeen != nil && d.LastSeen.Before(cutoff) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *memDevices) MarkOfflineBefore(cutoff time.Time) (int64, error) {
	var flipped int64
	for _, d := range f.rows {
		if d.DeviceStatus == models.DeviceStatusOnline && d.LastSeen != nil && d.LastSeen.Before(cutoff) {
			d.DeviceStatus = models.DeviceStatusOffline
			flipped++
		}
	}
	return flipped, nil
}

type memSessions struct {
	rows   map[uint]*models.DriveSession
	nextID uint
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[uint]*models.DriveSession{}}
}

func (f *memSessions) Find(id uint) (*models.DriveSession, error) {
	if s, ok := f.rows[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, nil
}

func (f *memSessions) Create(s *models.DriveSession) error {
	f.nextID++
	s.ID = f.nextID
	copy := *s
	f.rows[s.ID] = &copy
	return nil
}

func (f *memSessions) Save(s *models.DriveSession) error {
	copy := *s
	f.rows[s.ID] = &copy
	return nil
}

func (f *memSessions) ForVehicle(vehicleID uint, limit int) ([]models.DriveSession, error) {
	var out []models.DriveSession
	for _, s := range f.rows {
		if s.VehicleID == vehicleID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *memSessions) openCount(deviceID string) int {
	n := 0
	for _, s := range f.rows {
		if s.DeviceID == deviceID && s.EndedAt == nil {
			n++
		}
	}
	return n
}

type memTelemetry struct {
	samples []models.TelemetrySample
}

func (f *memTelemetry) Insert(s *models.TelemetrySample) error {
	f.samples = append(f.samples, *s)
	return nil
}

func (f *memTelemetry) Latest(vehicleID uint, keys []string) (*models.TelemetrySample, error) {
	want := map[string]bool{}
	for _, k := range keys {
		want[strings.ToUpper(k)] = true
	}
	var latest *models.TelemetrySample
	for i := range f.samples {
		s := f.samples[i]
		if s.VehicleID != vehicleID || !want[strings.ToUpper(s.Key)] {
			continue
		}
		if latest == nil || s.Timestamp.After(latest.Timestamp) {
			copy := s
			latest = &copy
		}
	}
	return latest, nil
}

func (f *memTelemetry) AggregateRange(vehicleID uint, key string, start, end time.Time) (*models.Aggregate, error) {
	agg := &models.Aggregate{}
	var sum float64
	for _, s := range f.samples {
		if s.VehicleID != vehicleID || !strings.EqualFold(s.Key, key) {
			continue
		}
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		if agg.Count == 0 || s.Value < agg.Min {
			agg.Min = s.Value
		}
		if agg.Count == 0 || s.Value > agg.Max {
			agg.Max = s.Value
		}
		sum += s.Value
		agg.Count++
	}
	if agg.Count > 0 {
		agg.Avg = sum / float64(agg.Count)
	}
	return agg, nil
}

func (f *memTelemetry) DeleteBefore(cutoff time.Time) (int64, error) {
	kept := f.samples[:0]
	var deleted int64
	for _, s := range f.samples {
		if s.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.samples = kept
	return deleted, nil
}

type memSettings struct {
	values map[string]string
	broker models.BrokerSettings
}

func (f *memSettings) Get(key string) (string, error) {
	return f.values[key], nil
}

func (f *memSettings) Set(key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

func (f *memSettings) LoadBroker() (*models.BrokerSettings, error) {
	copy := f.broker
	return &copy, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const testDeviceID = "aa11bb22cc33"

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func linkedDevice(vehicleID uint) *models.Device {
	vid := vehicleID
	seen := baseTime
	return &models.Device{
		DeviceID:     testDeviceID,
		VehicleID:    &vid,
		DeviceStatus: models.DeviceStatusOnline,
		ECUStatus:    models.ECUStatusUnknown,
		Enabled:      true,
		LastSeen:     &seen,
	}
}

func newTestEngine() (*Engine, *memDevices, *memSessions, *memTelemetry) {
	devices := newMemDevices()
	sessions := newMemSessions()
	telemetry := &memTelemetry{}
	return NewEngine(devices, sessions, telemetry), devices, sessions, telemetry
}

func addSample(store *memTelemetry, vehicleID uint, key string, value float64, at time.Time) {
	store.samples = append(store.samples, models.TelemetrySample{
		VehicleID: vehicleID,
		Key:       key,
		Value:     value,
		Timestamp: at,
	})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSessionLifecycle(t *testing.T) {
	engine, devices, sessions, store := newTestEngine()
	devices.Save(linkedDevice(1))

	addSample(store, 1, "ODOMETER", 1000, baseTime.Add(-time.Minute))

	if err := engine.HandleECUStatus(testDeviceID, true, baseTime); err != nil {
		t.Fatalf("online edge failed: %v", err)
	}

	d, _ := devices.Find(testDeviceID)
	if d.CurrentSessionID == nil {
		t.Fatal("expected an open session after online edge")
	}
	if d.ECUStatus != models.ECUStatusOnline {
		t.Errorf("expected ecu_status online, got %s", d.ECUStatus)
	}
	sess, _ := sessions.Find(*d.CurrentSessionID)
	if sess.StartOdometer == nil || *sess.StartOdometer != 1000 {
		t.Errorf("expected start odometer 1000, got %v", sess.StartOdometer)
	}

	// telemetry arriving during the session
	addSample(store, 1, "SPEED", 10, baseTime.Add(1*time.Minute))
	addSample(store, 1, "SPEED", 20, baseTime.Add(2*time.Minute))
	addSample(store, 1, "SPEED", 30, baseTime.Add(3*time.Minute))
	addSample(store, 1, "ODOMETER", 1050, baseTime.Add(4*time.Minute))

	endAt := baseTime.Add(5 * time.Minute)
	if err := engine.HandleECUStatus(testDeviceID, false, endAt); err != nil {
		t.Fatalf("offline edge failed: %v", err)
	}

	d, _ = devices.Find(testDeviceID)
	if d.CurrentSessionID != nil {
		t.Error("session pointer must be cleared after close")
	}
	if d.ECUStatus != models.ECUStatusOffline {
		t.Errorf("expected ecu_status offline, got %s", d.ECUStatus)
	}

	closed, _ := sessions.Find(sess.ID)
	if closed.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}
	if closed.DurationSeconds == nil || *closed.DurationSeconds != 300 {
		t.Errorf("expected duration 300s, got %v", closed.DurationSeconds)
	}
	if closed.EndOdometer == nil || *closed.EndOdometer != 1050 {
		t.Errorf("expected end odometer 1050, got %v", closed.EndOdometer)
	}
	if closed.Distance == nil || *closed.Distance != 50 {
		t.Errorf("expected distance 50, got %v", closed.Distance)
	}
	if closed.AvgSpeed == nil || *closed.AvgSpeed != 20 {
		t.Errorf("expected avg_speed 20, got %v", closed.AvgSpeed)
	}
	if closed.MaxSpeed == nil || *closed.MaxSpeed != 30 {
		t.Errorf("expected max_speed 30, got %v", closed.MaxSpeed)
	}
	// no RPM samples in the window: aggregate stays null, not zero
	if closed.AvgRPM != nil || closed.MaxRPM != nil {
		t.Errorf("expected nil RPM aggregates, got avg=%v max=%v", closed.AvgRPM, closed.MaxRPM)
	}
}

func TestDuplicateEdgesAreIdempotent(t *testing.T) {
	engine, devices, sessions, _ := newTestEngine()
	devices.Save(linkedDevice(1))

	engine.HandleECUStatus(testDeviceID, true, baseTime)
	d, _ := devices.Find(testDeviceID)
	first := *d.CurrentSessionID

	// retransmitted online report must not open a second session
	engine.HandleECUStatus(testDeviceID, true, baseTime.Add(time.Second))
	d, _ = devices.Find(testDeviceID)
	if d.CurrentSessionID == nil || *d.CurrentSessionID != first {
		t.Fatalf("duplicate online report changed the session pointer: %v", d.CurrentSessionID)
	}
	if sessions.openCount(testDeviceID) != 1 {
		t.Fatalf("expected exactly 1 open session, got %d", sessions.openCount(testDeviceID))
	}

	engine.HandleECUStatus(testDeviceID, false, baseTime.Add(time.Minute))
	engine.HandleECUStatus(testDeviceID, false, baseTime.Add(2*time.Minute))

	if sessions.openCount(testDeviceID) != 0 {
		t.Fatal("expected no open sessions after offline")
	}
	closed, _ := sessions.Find(first)
	if closed.EndedAt == nil || !closed.EndedAt.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("duplicate offline report must not move ended_at: %v", closed.EndedAt)
	}
}

func TestSelfHealOnMissedOfflineEdge(t *testing.T) {
	engine, devices, sessions, _ := newTestEngine()
	devices.Save(linkedDevice(1))

	engine.HandleECUStatus(testDeviceID, true, baseTime)
	d, _ := devices.Find(testDeviceID)
	stale := *d.CurrentSessionID

	// simulate a skipped offline signal: the registry recorded offline but
	// the session pointer was never cleared
	raw := devices.rows[testDeviceID]
	raw.ECUStatus = models.ECUStatusOffline

	second := baseTime.Add(10 * time.Minute)
	if err := engine.HandleECUStatus(testDeviceID, true, second); err != nil {
		t.Fatalf("self-heal online edge failed: %v", err)
	}

	if sessions.openCount(testDeviceID) != 1 {
		t.Fatalf("expected exactly 1 open session after self-heal, got %d", sessions.openCount(testDeviceID))
	}
	healed, _ := sessions.Find(stale)
	if healed.EndedAt == nil {
		t.Error("stale session must be force-closed with a non-nil ended_at")
	}
	d, _ = devices.Find(testDeviceID)
	if d.CurrentSessionID == nil || *d.CurrentSessionID == stale {
		t.Error("expected a fresh session to be open after self-heal")
	}
}

func TestUnlinkedDeviceGetsNoSession(t *testing.T) {
	engine, devices, sessions, _ := newTestEngine()
	d := linkedDevice(0)
	d.VehicleID = nil
	devices.Save(d)

	engine.HandleECUStatus(testDeviceID, true, baseTime)

	got, _ := devices.Find(testDeviceID)
	if got.CurrentSessionID != nil {
		t.Error("unlinked device must not get a session")
	}
	if got.ECUStatus != models.ECUStatusOnline {
		t.Errorf("status must still be tracked, got %s", got.ECUStatus)
	}
	if len(sessions.rows) != 0 {
		t.Errorf("expected no session rows, got %d", len(sessions.rows))
	}
}

func TestMissingOdometerLeavesDistanceNil(t *testing.T) {
	engine, devices, sessions, _ := newTestEngine()
	devices.Save(linkedDevice(1))

	engine.HandleECUStatus(testDeviceID, true, baseTime)
	engine.HandleECUStatus(testDeviceID, false, baseTime.Add(time.Minute))

	var closed *models.DriveSession
	for id := range sessions.rows {
		closed, _ = sessions.Find(id)
	}
	if closed == nil || closed.EndedAt == nil {
		t.Fatal("expected one closed session")
	}
	if closed.StartOdometer != nil || closed.EndOdometer != nil || closed.Distance != nil {
		t.Errorf("expected nil odometry, got start=%v end=%v distance=%v",
			closed.StartOdometer, closed.EndOdometer, closed.Distance)
	}
}

func TestOfflineWithoutSessionIsNoop(t *testing.T) {
	engine, devices, sessions, _ := newTestEngine()
	d := linkedDevice(1)
	d.ECUStatus = models.ECUStatusOnline // pointer already cleared by a concurrent unlink
	devices.Save(d)

	if err := engine.HandleECUStatus(testDeviceID, false, baseTime); err != nil {
		t.Fatalf("defensive close failed: %v", err)
	}
	if len(sessions.rows) != 0 {
		t.Error("no session rows expected")
	}
	got, _ := devices.Find(testDeviceID)
	if got.ECUStatus != models.ECUStatusOffline {
		t.Errorf("expected ecu_status offline, got %s", got.ECUStatus)
	}
}

func TestEdgeSequenceNeverLeavesTwoOpenSessions(t *testing.T) {
	engine, devices, sessions, _ := newTestEngine()
	devices.Save(linkedDevice(1))

	sequence := []bool{true, true, false, true, false, false, true, true, true, false}
	at := baseTime
	for i, online := range sequence {
		at = at.Add(time.Minute)
		if err := engine.HandleECUStatus(testDeviceID, online, at); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if n := sessions.openCount(testDeviceID); n > 1 {
			t.Fatalf("step %d: %d open sessions, invariant violated", i, n)
		}
		d, _ := devices.Find(testDeviceID)
		if (d.CurrentSessionID != nil) != (sessions.openCount(testDeviceID) == 1) {
			t.Fatalf("step %d: session pointer disagrees with open session count", i)
		}
	}
}

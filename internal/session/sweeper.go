package session

import (
	"context"
	"sync"
	"time"

	"wican-bridge/internal/repository"
	"wican-bridge/internal/utils"
)

// retention pruning runs at most this often, independent of the sweep cadence
const pruneEvery = time.Hour

// Sweeper reclaims sessions whose device stopped reporting without a clean
// offline signal, marks silent gateways offline and prunes telemetry past
// retention. It drives the same close path as live ingestion, so the two are
// safe to run concurrently.
type Sweeper struct {
	devices   repository.DeviceRepository
	telemetry repository.TelemetryRepository
	settings  repository.SettingsRepository
	engine    *Engine
	interval  time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastPrune time.Time
}

func NewSweeper(
	devices repository.DeviceRepository,
	telemetry repository.TelemetryRepository,
	settings repository.SettingsRepository,
	engine *Engine,
	interval time.Duration,
) *Sweeper {
	return &Sweeper{
		devices:   devices,
		telemetry: telemetry,
		settings:  settings,
		engine:    engine,
		interval:  interval,
	}
}

// Start launches the sweep loop. Idempotent.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	utils.Logger.Infof("timeout sweeper started (interval %s)", s.interval)
}

// Stop cancels the loop and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	utils.Logger.Info("timeout sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs one pass. Exported so operators (and tests) can trigger it
// outside the cadence.
func (s *Sweeper) Sweep() {
	settings, err := s.settings.LoadBroker()
	if err != nil {
		utils.Logger.Errorf("sweep skipped, settings load failed: %v", err)
		return
	}
	now := time.Now().UTC()

	s.reclaimSessions(now, settings.SessionTimeout)
	s.markOffline(now, settings.DeviceOfflineTimeout)
	s.pruneTelemetry(now, settings.RetentionDays)
}

// reclaimSessions force-closes sessions whose device went silent. The close
// timestamp is the device's last_seen, not sweep time: duration and aggregate
// windows must reflect when data actually stopped.
func (s *Sweeper) reclaimSessions(now time.Time, timeout time.Duration) {
	stale, err := s.devices.StaleInSession(now.Add(-timeout))
	if err != nil {
		utils.Logger.Errorf("stale session query failed: %v", err)
		return
	}

	for i := range stale {
		device := &stale[i]
		endedAt := now
		if device.LastSeen != nil {
			endedAt = *device.LastSeen
		}
		utils.Logger.Warnf("reclaiming stale session for device %s (last seen %s)",
			device.DeviceID, endedAt.Format(time.RFC3339))
		if err := s.engine.ForceClose(device.DeviceID, endedAt); err != nil {
			utils.Logger.Errorf("failed to reclaim session for device %s: %v", device.DeviceID, err)
		}
	}
}

func (s *Sweeper) markOffline(now time.Time, timeout time.Duration) {
	flipped, err := s.devices.MarkOfflineBefore(now.Add(-timeout))
	if err != nil {
		utils.Logger.Errorf("offline marking failed: %v", err)
		return
	}
	if flipped > 0 {
		utils.Logger.Infof("marked %d silent devices offline", flipped)
	}
}

func (s *Sweeper) pruneTelemetry(now time.Time, retentionDays int) {
	if retentionDays <= 0 || now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now

	cutoff := now.AddDate(0, 0, -retentionDays)
	pruned, err := s.telemetry.DeleteBefore(cutoff)
	if err != nil {
		utils.Logger.Errorf("telemetry prune failed: %v", err)
		return
	}
	if pruned > 0 {
		utils.Logger.Infof("pruned %d telemetry samples older than %s", pruned, cutoff.Format("2006-01-02"))
	}
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wican-bridge/internal/ingest"
	"wican-bridge/internal/repository"
	"wican-bridge/internal/utils"

	"github.com/looplab/fsm"
)

// Reconnect backoff bounds. The delay doubles per consecutive failure and
// resets to the floor on any successful connect.
const (
	backoffFloor   = 5 * time.Second
	backoffCeiling = 60 * time.Second
)

// Connection lifecycle states exposed through the status snapshot.
const (
	StateStopped      = "stopped"
	StateDisabled     = "disabled"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
	StateError        = "error"
)

const messageBuffer = 64

// Status is the read-only operational snapshot. Visibility only; nothing in
// the core keys correctness off it.
type Status struct {
	Running       bool       `json:"running"`
	State         string     `json:"state"`
	LastMessageAt *time.Time `json:"last_message_at"`
	Processed     uint64     `json:"processed"`
	LastError     string     `json:"last_error,omitempty"`
}

type inbound struct {
	topic   string
	payload []byte
}

// Subscriber is the long-lived broker consumer: one supervising loop that
// polls settings, connects, subscribes to {prefix}/+/# and feeds a
// single-consumer message loop. Messages for all devices are processed
// sequentially; per-vehicle message rates make that a deliberate
// simplicity-over-throughput tradeoff.
type Subscriber struct {
	settings     repository.SettingsRepository
	processor    *ingest.Processor
	factory      ClientFactory
	clientID     string
	pollInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state     *fsm.FSM
	stateMu   sync.Mutex
	processed uint64
	lastMsg   atomic.Value // time.Time
	lastErr   atomic.Value // string
}

func NewSubscriber(
	settings repository.SettingsRepository,
	processor *ingest.Processor,
	factory ClientFactory,
	clientID string,
	pollInterval time.Duration,
) *Subscriber {
	s := &Subscriber{
		settings:     settings,
		processor:    processor,
		factory:      factory,
		clientID:     clientID,
		pollInterval: pollInterval,
	}
	s.state = fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: "disable", Src: []string{StateStopped, StateDisabled, StateConnecting, StateConnected, StateDisconnected, StateError}, Dst: StateDisabled},
			{Name: "connect", Src: []string{StateStopped, StateDisabled, StateDisconnected, StateError, StateConnecting}, Dst: StateConnecting},
			{Name: "established", Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: "lost", Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
			{Name: "fail", Src: []string{StateStopped, StateDisabled, StateConnecting, StateConnected, StateDisconnected}, Dst: StateError},
			{Name: "stop", Src: []string{StateStopped, StateDisabled, StateConnecting, StateConnected, StateDisconnected, StateError}, Dst: StateStopped},
		},
		fsm.Callbacks{},
	)
	return s
}

// Start spawns the supervising loop. Calling it while running is a no-op.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	utils.Logger.Info("broker subscriber started")
}

// Stop cancels the loop and waits for in-flight message handling to finish,
// so callers can assume nothing races past it.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.transition("stop")
	utils.Logger.Info("broker subscriber stopped")
}

// Running reports whether the supervising loop is alive.
func (s *Subscriber) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Snapshot returns the current operational status.
func (s *Subscriber) Snapshot() Status {
	status := Status{
		Running:   s.Running(),
		State:     s.currentState(),
		Processed: atomic.LoadUint64(&s.processed),
	}
	if t, ok := s.lastMsg.Load().(time.Time); ok && !t.IsZero() {
		status.LastMessageAt = &t
	}
	if e, ok := s.lastErr.Load().(string); ok {
		status.LastError = e
	}
	return status
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)

	delay := backoffFloor
	for ctx.Err() == nil {
		settings, err := s.settings.LoadBroker()
		if err != nil {
			utils.Logger.Errorf("settings load failed: %v", err)
			s.sleep(ctx, s.pollInterval)
			continue
		}
		if !settings.Configured() {
			s.transition("disable")
			s.sleep(ctx, s.pollInterval)
			continue
		}

		s.transition("connect")
		lost := make(chan error, 1)
		client, err := s.factory(settings, s.clientID, func(err error) {
			select {
			case lost <- err:
			default:
			}
		})
		if err != nil {
			if err == ErrClientUnavailable {
				// permanent condition, not a connection hiccup: park in
				// error state and re-check only on the settings poll
				s.fail(err)
				s.sleep(ctx, s.pollInterval)
				continue
			}
			s.fail(err)
			s.sleep(ctx, delay)
			delay = nextBackoff(delay)
			continue
		}

		if err := client.Connect(); err != nil {
			utils.Logger.Errorf("broker connect failed: %v", err)
			s.fail(err)
			s.sleep(ctx, delay)
			delay = nextBackoff(delay)
			continue
		}

		messages := make(chan inbound, messageBuffer)
		topic := settings.TopicPrefix + "/+/#"
		err = client.Subscribe(topic, 0, func(topic string, payload []byte) {
			select {
			case messages <- inbound{topic: topic, payload: payload}:
			default:
				utils.Logger.Warnf("message buffer full, dropping message on %s", topic)
			}
		})
		if err != nil {
			utils.Logger.Errorf("broker subscribe failed: %v", err)
			client.Disconnect(250)
			s.fail(err)
			s.sleep(ctx, delay)
			delay = nextBackoff(delay)
			continue
		}

		utils.Logger.Infof("subscribed to %s on %s:%d", topic, settings.Host, settings.Port)
		s.transition("established")
		delay = backoffFloor

		s.consume(ctx, settings.TopicPrefix, messages, lost)
		client.Disconnect(250)

		if ctx.Err() != nil {
			return
		}
		s.transition("lost")
		s.sleep(ctx, delay)
		delay = nextBackoff(delay)
	}
}

// consume is the single-consumer message loop. It returns when the context
// is cancelled or the connection drops; a failure while handling one message
// is logged and the next message is still processed.
func (s *Subscriber) consume(ctx context.Context, prefix string, messages <-chan inbound, lost <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			utils.Logger.Warnf("broker connection dropped: %v", err)
			return
		case msg := <-messages:
			if err := s.handleMessage(ctx, prefix, msg); err != nil {
				utils.Logger.Errorf("failed to handle message on %s: %v", msg.topic, err)
				s.lastErr.Store(err.Error())
			}
		}
	}
}

// handleMessage is one unit of work: parse, route, process. Malformed topics
// and payloads are dropped at debug level; brokers carry foreign traffic and
// a single bad message must never take the loop down.
func (s *Subscriber) handleMessage(ctx context.Context, prefix string, msg inbound) error {
	route := ParseTopic(prefix, msg.topic)
	if route == nil {
		utils.Logger.Debugf("dropping unroutable topic %s", msg.topic)
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		utils.Logger.Debugf("dropping malformed payload on %s: %v", msg.topic, err)
		return nil
	}

	now := time.Now().UTC()
	var err error

	switch route.Leaf {
	case SubtopicStatus:
		// only an explicit "online" counts as the online edge; any other
		// value is treated as offline for safety
		online := false
		if raw, ok := payload["status"].(string); ok {
			online = raw == "online"
		}
		err = s.processor.ProcessStatus(route.DeviceID, nil, online, now)

	case SubtopicBattery:
		voltage, ok := payload["battery_voltage"].(float64)
		if !ok {
			utils.Logger.Debugf("dropping battery message without numeric voltage on %s", msg.topic)
			return nil
		}
		err = s.processor.ProcessBattery(ctx, route.DeviceID, nil, voltage, now)

	default:
		readings := ingest.NumericReadings(payload)
		if len(readings) == 0 {
			utils.Logger.Debugf("dropping telemetry message without numeric readings on %s", msg.topic)
			return nil
		}
		err = s.processor.ProcessTelemetry(ctx, route.DeviceID, nil, readings, now)
	}
	if err != nil {
		return fmt.Errorf("processing %s for device %s: %w", route.Leaf, route.DeviceID, err)
	}

	s.lastMsg.Store(now)
	atomic.AddUint64(&s.processed, 1)
	return nil
}

func (s *Subscriber) transition(event string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := s.state.Event(context.Background(), event); err != nil {
		// fsm rejects no-op transitions (e.g. disable while disabled);
		// those are fine here
		utils.Logger.Debugf("subscriber state event %s ignored: %v", event, err)
	}
}

func (s *Subscriber) fail(err error) {
	s.lastErr.Store(err.Error())
	s.transition("fail")
}

func (s *Subscriber) currentState() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.Current()
}

func (s *Subscriber) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCeiling {
		return backoffCeiling
	}
	return d
}

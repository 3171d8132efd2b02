// Package alert is the fire-and-forget notification sink boundary. Channel
// integrations (mail, webhooks, chat) live outside this subsystem; the core
// only hands events to a Notifier.
package alert

import (
	"context"
	"time"

	"wican-bridge/internal/utils"
)

// Event is one threshold violation.
type Event struct {
	VehicleID uint      `json:"vehicle_id"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Bound     string    `json:"bound"` // "min" or "max"
	Limit     float64   `json:"limit"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Notifier receives alert events. Implementations must not block the
// ingestion path for longer than a single dispatch.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier is the default sink: it writes the event to the application
// log. The production dispatcher replaces it at wiring time.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	utils.Logger.Warnf("ALERT vehicle=%d %s=%.2f breached %s limit %.2f: %s",
		event.VehicleID, event.Parameter, event.Value, event.Bound, event.Limit, event.Message)
	return nil
}

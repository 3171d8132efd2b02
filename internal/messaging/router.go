package messaging

import (
	"strings"

	"wican-bridge/internal/utils"
)

// Recognized leaf subtopics; anything else is flat numeric telemetry.
const (
	SubtopicStatus  = "status"
	SubtopicBattery = "battery"
)

// Route is a parsed broker topic: {prefix}/{deviceId}/{subtopic...}.
type Route struct {
	DeviceID string // normalized
	Subtopic string // full path under the device id
	Leaf     string // last segment, used for dispatch
}

// ParseTopic splits a topic against the configured prefix. Nil means the
// message is foreign or malformed and should be dropped silently; shared
// brokers carry unrelated traffic and that is not an error.
func ParseTopic(prefix, topic string) *Route {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return nil
	}
	if parts[0] != prefix {
		return nil
	}

	deviceID := utils.NormalizeDeviceID(parts[1])
	if deviceID == "" {
		return nil
	}

	return &Route{
		DeviceID: deviceID,
		Subtopic: strings.Join(parts[2:], "/"),
		Leaf:     parts[len(parts)-1],
	}
}

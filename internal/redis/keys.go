package redis

import "fmt"

// Redis key patterns
const (
	AlertCooldownPattern = "alert_cooldown:%d:%s"
)

// AlertCooldownKey builds the cooldown latch key for one vehicle/parameter
// pair.
func AlertCooldownKey(vehicleID uint, parameterKey string) string {
	return fmt.Sprintf(AlertCooldownPattern, vehicleID, parameterKey)
}

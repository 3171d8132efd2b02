package models

import "time"

// AppSetting is one key/value row of process-wide settings. Broker and engine
// configuration is edited through the (out-of-scope) admin UI and polled by
// the subscriber, not pushed.
type AppSetting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"size:512" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BrokerSettings is the typed view of the app_settings table, parsed once per
// poll cycle with defaults applied. Enabled=false (or a missing host) means
// the subscriber idles on its poll interval.
type BrokerSettings struct {
	Enabled     bool
	Host        string
	Port        int
	Username    string
	Password    string
	TopicPrefix string
	TLS         bool

	SessionTimeout       time.Duration
	DeviceOfflineTimeout time.Duration
	RetentionDays        int
	AlertCooldown        time.Duration
}

// Configured reports whether there is enough configuration to attempt a
// broker connection.
func (s *BrokerSettings) Configured() bool {
	return s.Enabled && s.Host != ""
}

package repository

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"wican-bridge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys
const (
	SettingBrokerEnabled        = "broker.enabled"
	SettingBrokerHost           = "broker.host"
	SettingBrokerPort           = "broker.port"
	SettingBrokerUsername       = "broker.username"
	SettingBrokerPassword       = "broker.password"
	SettingBrokerTopicPrefix    = "broker.topic_prefix"
	SettingBrokerTLS            = "broker.tls"
	SettingSessionTimeoutMin    = "session.timeout_minutes"
	SettingDeviceOfflineMin     = "device.offline_timeout_minutes"
	SettingTelemetryRetention   = "telemetry.retention_days"
	SettingAlertCooldownMinutes = "alerts.cooldown_minutes"
	SettingGlobalTokenHash      = "auth.global_token_hash"
)

// Defaults applied when a settings row is absent or unparseable.
const (
	DefaultTopicPrefix          = "wican"
	DefaultBrokerPort           = 1883
	DefaultSessionTimeoutMin    = 5
	DefaultDeviceOfflineMin     = 10
	DefaultRetentionDays        = 90
	DefaultAlertCooldownMinutes = 30
)

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(key string) (string, error) {
	var setting models.AppSetting
	err := r.db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (r *settingsRepository) Set(key, value string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.AppSetting{Key: key, Value: value}).Error
}

func (r *settingsRepository) LoadBroker() (*models.BrokerSettings, error) {
	var rows []models.AppSetting
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}

	return &models.BrokerSettings{
		Enabled:     parseBool(values[SettingBrokerEnabled], false),
		Host:        values[SettingBrokerHost],
		Port:        parseInt(values[SettingBrokerPort], DefaultBrokerPort),
		Username:    values[SettingBrokerUsername],
		Password:    values[SettingBrokerPassword],
		TopicPrefix: parseString(values[SettingBrokerTopicPrefix], DefaultTopicPrefix),
		TLS:         parseBool(values[SettingBrokerTLS], false),

		SessionTimeout: time.Duration(
			parseInt(values[SettingSessionTimeoutMin], DefaultSessionTimeoutMin)) * time.Minute,
		DeviceOfflineTimeout: time.Duration(
			parseInt(values[SettingDeviceOfflineMin], DefaultDeviceOfflineMin)) * time.Minute,
		RetentionDays: parseInt(values[SettingTelemetryRetention], DefaultRetentionDays),
		AlertCooldown: time.Duration(
			parseInt(values[SettingAlertCooldownMinutes], DefaultAlertCooldownMinutes)) * time.Minute,
	}, nil
}

func parseString(raw, fallback string) string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	return strings.TrimSpace(raw)
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

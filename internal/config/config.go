package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// HTTP
	HTTPAddr string

	// MQTT
	MQTTClientID string

	// Application
	LogLevel           string
	SettingsPollPeriod time.Duration
	SweepInterval      time.Duration
}

func Load() (*Config, error) {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	pollSeconds, _ := strconv.Atoi(getEnv("SETTINGS_POLL_SECONDS", "30"))
	sweepSeconds, _ := strconv.Atoi(getEnv("SWEEP_INTERVAL_SECONDS", "60"))

	return &Config{
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "password"),
		DBName:             getEnv("DB_NAME", "wican_bridge"),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            redisDB,
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "wican-bridge"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SettingsPollPeriod: time.Duration(pollSeconds) * time.Second,
		SweepInterval:      time.Duration(sweepSeconds) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

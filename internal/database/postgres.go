package database

import (
	"fmt"

	"wican-bridge/internal/config"
	"wican-bridge/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Device{},          // gateway identity and status
		&models.DriveSession{},    // drive session lifecycle and aggregates
		&models.TelemetrySample{}, // append-only time-series readings
		&models.AlertThreshold{},  // per-vehicle alert bounds
		&models.AppSetting{},      // polled broker/engine settings
	); err != nil {
		return nil, err
	}

	return db, nil
}

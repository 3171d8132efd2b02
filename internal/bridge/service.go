// Package bridge wires the subsystem together: repositories over postgres,
// the device registry, the session engine, both ingestion fronts and the
// timeout sweeper. Exactly one subscriber per process is an application
// wiring decision made here, not a hidden singleton.
package bridge

import (
	"context"
	"net/http"
	"time"

	"wican-bridge/internal/alert"
	"wican-bridge/internal/config"
	"wican-bridge/internal/device"
	"wican-bridge/internal/handlers"
	"wican-bridge/internal/ingest"
	"wican-bridge/internal/messaging"
	wredis "wican-bridge/internal/redis"
	"wican-bridge/internal/repository"
	"wican-bridge/internal/session"
	"wican-bridge/internal/telemetry"
	"wican-bridge/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	redisClient "github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const httpShutdownTimeout = 10 * time.Second

type Service struct {
	db     *gorm.DB
	redis  *redisClient.Client
	config *config.Config

	registry   *device.Registry
	engine     *session.Engine
	processor  *ingest.Processor
	subscriber *messaging.Subscriber
	sweeper    *session.Sweeper
	httpServer *echo.Echo
}

func NewService(db *gorm.DB, redis *redisClient.Client, cfg *config.Config) *Service {
	utils.Logger.Info("🏗️ CREATING Bridge Service")

	// Repositories
	devices := repository.NewDeviceRepository(db)
	sessions := repository.NewSessionRepository(db)
	samples := repository.NewTelemetryRepository(db)
	settings := repository.NewSettingsRepository(db)
	thresholds := repository.NewThresholdRepository(db)

	// Core services
	registry := device.NewRegistry(devices, settings)
	telemetrySvc := telemetry.NewService(
		samples, thresholds, settings,
		wredis.NewCooldown(redis),
		alert.NewLogNotifier(),
	)
	engine := session.NewEngine(devices, sessions, samples)
	processor := ingest.NewProcessor(registry, engine, telemetrySvc)

	// Ingestion fronts
	subscriber := messaging.NewSubscriber(
		settings, processor,
		messaging.NewPahoFactory(),
		cfg.MQTTClientID,
		cfg.SettingsPollPeriod,
	)
	sweeper := session.NewSweeper(devices, samples, settings, engine, cfg.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	handlers.NewAPIHandler(registry, processor, engine, subscriber).Register(e)

	service := &Service{
		db:         db,
		redis:      redis,
		config:     cfg,
		registry:   registry,
		engine:     engine,
		processor:  processor,
		subscriber: subscriber,
		sweeper:    sweeper,
		httpServer: e,
	}

	utils.Logger.Info("✅ Bridge Service CREATED")
	return service
}

// Start launches the subscriber, the sweeper and the HTTP server.
func (s *Service) Start(ctx context.Context) error {
	utils.Logger.Info("🚀 STARTING Bridge Service")

	s.subscriber.Start(ctx)
	s.sweeper.Start(ctx)

	go func() {
		if err := s.httpServer.Start(s.config.HTTPAddr); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	utils.Logger.Infof("🎉 Bridge Service STARTED (http %s)", s.config.HTTPAddr)
	return nil
}

// Stop shuts everything down in dependency order and waits for in-flight
// work to drain.
func (s *Service) Stop() {
	utils.Logger.Info("🛑 STOPPING Bridge Service")

	s.subscriber.Stop()
	s.sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Errorf("HTTP shutdown failed: %v", err)
	}

	if err := s.redis.Close(); err != nil {
		utils.Logger.Errorf("redis close failed: %v", err)
	}

	utils.Logger.Info("✅ Bridge Service STOPPED")
}

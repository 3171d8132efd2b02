package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"wican-bridge/internal/bridge"
	"wican-bridge/internal/config"
	"wican-bridge/internal/database"
	"wican-bridge/internal/redis"
	"wican-bridge/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	utils.SetupLogger(cfg.LogLevel)

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		utils.Logger.Fatalf("Failed to initialize database: %v", err)
	}

	redisClient, err := redis.NewRedisClient(cfg)
	if err != nil {
		utils.Logger.Fatalf("Failed to initialize Redis: %v", err)
	}

	service := bridge.NewService(db, redisClient, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		utils.Logger.Fatalf("Failed to start bridge service: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	utils.Logger.Info("🛑 Shutdown signal received")
	cancel()
	service.Stop()
}

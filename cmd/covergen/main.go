package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"covergen/internal/app"
	"covergen/internal/store"
	u "covergen/internal/utils"
)

func main() {
	cfg := u.LoadConfig()
	applyEnvOverrides(&cfg)
	u.AppConfig = cfg

	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	u.SetLogLevel(cfg.Logger.Level)

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.CoverCacheDB,
		})
	}

	idleConnsClosed := make(chan struct{})

	u.SetStaticAPIKey(cfg.Auth.APIKey)
	if cfg.Auth.Postgres.Host != "" {
		if err := u.LoadAPIKeysFromPostgres(cfg.Auth.Postgres); err != nil {
			u.Error("Failed to load API keys", "error", err)
		}
		go u.RefreshAPIKeysPeriodically(cfg.Auth.Postgres, time.Minute, idleConnsClosed)
	}
	if cfg.Auth.APIKey == "" && cfg.Auth.Postgres.Host == "" {
		u.Warn("No API key source configured; all authenticated requests will be rejected")
	}

	images, err := store.New(cfg.Cover.ImageDir, cfg.Cover.ImageTTL)
	if err != nil {
		u.Error("Failed to init image store", "dir", cfg.Cover.ImageDir, "error", err)
		os.Exit(1)
	}
	go images.RunJanitor(10*time.Minute, idleConnsClosed)

	app := app.SetupApp(cfg, rdb, images)

	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// applyEnvOverrides maps common container env vars onto the config.
func applyEnvOverrides(cfg *u.Config) {
	if v := os.Getenv("IMAGE_DIR"); v != "" {
		cfg.Cover.ImageDir = v
	}
	if v := os.Getenv("FONT_PATH"); v != "" {
		cfg.Cover.FontPath = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = ":" + v
	}
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}

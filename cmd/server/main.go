// Package main is the entry point for the achievement engine server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scholarpass/achievement-engine/internal/api/tokens"
	"github.com/scholarpass/achievement-engine/internal/assessor"
	"github.com/scholarpass/achievement-engine/internal/cache"
	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/repository"
	"github.com/scholarpass/achievement-engine/internal/service/evolution"
	"github.com/scholarpass/achievement-engine/internal/service/registry"
	"github.com/scholarpass/achievement-engine/internal/service/stacking"
	"github.com/scholarpass/achievement-engine/internal/service/verification"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting achievement engine")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}()

	achievementRepo := repository.NewAchievementRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	trustClient := assessor.NewClient(&cfg.Assessor, log)

	evolutionService := evolution.NewService(tokenRepo, cfg, redisCache, log)
	verificationService := verification.NewService(achievementRepo, trustClient, evolutionService, cfg, redisCache, log)
	stackingService, err := stacking.NewService(tokenRepo, evolutionService, cfg, redisCache, log)
	if err != nil {
		return fmt.Errorf("failed to build stacking service: %w", err)
	}
	registryService := registry.NewService(tokenRepo, cfg, redisCache, log)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := tokens.NewHandler(verificationService, evolutionService, stackingService, registryService, log)
	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

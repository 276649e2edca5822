package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/health"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/middleware"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/server"
)

const opsShutdownTimeout = 5 * time.Second

func main() {
	port := flag.Int("port", 0, "game listener port, overrides PORT and the config file")
	flag.Parse()

	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Info("No .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	if err := logging.InitializeWithFile(cfg.Development(), cfg.LogDir); err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg)
	if err != nil {
		logging.Error(ctx, "Failed to create server", zap.Error(err))
		os.Exit(1)
	}

	if err := srv.Listen(ctx); err != nil {
		logging.Error(ctx, "Failed to bind game listener", zap.Error(err))
		os.Exit(1)
	}

	// --- Ops router: metrics and health probes ---
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	router.Use(cors.New(corsCfg))
	router.Use(middleware.CorrelationID())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(srv, srv.IdentityClient())
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	ops := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.OpsPort),
		Handler: router,
	}

	// --- Run both servers until a signal arrives ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	g.Go(func() error {
		logging.Info(gctx, "Ops server starting", zap.Int("port", cfg.OpsPort))
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info(context.Background(), "Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error(context.Background(), "Server exited with error", zap.Error(err))
		os.Exit(1)
	}

	logging.Info(context.Background(), "Server exiting")
}

// splitOrigins turns the comma-separated ALLOWED_ORIGINS value into the
// list gin-contrib/cors expects.
func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/ubuygold/contentmill/internal/admin"
	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/db"
	"github.com/ubuygold/contentmill/internal/generator"
	"github.com/ubuygold/contentmill/internal/keymanager"
	"github.com/ubuygold/contentmill/internal/lease"
	"github.com/ubuygold/contentmill/internal/logger"
	"github.com/ubuygold/contentmill/internal/project"
	"github.com/ubuygold/contentmill/internal/provider"
	"github.com/ubuygold/contentmill/internal/publisher"
	"github.com/ubuygold/contentmill/internal/scheduler"
	"github.com/ubuygold/contentmill/internal/secret"
	"github.com/ubuygold/contentmill/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// app holds the wired components of the service.
type app struct {
	router    *gin.Engine
	scheduler *scheduler.Scheduler
	closers   []func() error
}

func (a *app) close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error("Error during cleanup", "error", err)
		}
	}
}

func newSealer(cfg config.VaultConfig, log *slog.Logger) (*secret.Sealer, error) {
	encoded := cfg.EncryptionKey
	if encoded == "" {
		generated, err := secret.GenerateKey()
		if err != nil {
			return nil, err
		}
		log.Debug("Generated a temporary vault key")
		encoded = generated
	}
	return secret.NewSealer(encoded)
}

// newGuard selects the per-project lease for the configured consistency mode.
func newGuard(cfg config.GenerationConfig, log *slog.Logger) (lease.Guard, func() error, error) {
	noClose := func() error { return nil }
	if cfg.Consistency != config.ConsistencySerialized {
		return lease.Noop{}, noClose, nil
	}
	if cfg.RedisAddr == "" {
		log.Info("Serializing stages with an in-process lease")
		return lease.NewLocal(), noClose, nil
	}

	client := lease.NewRedisClient(cfg.RedisAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("Serializing stages with a redis lease", "addr", cfg.RedisAddr)
	ttl := time.Duration(cfg.LeaseTTLSeconds) * time.Second
	return lease.NewRedis(client, ttl, log), client.Close, nil
}

func newArchiver(ctx context.Context, cfg config.S3Config, log *slog.Logger) (publisher.Archiver, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	archiver, err := storage.NewS3Archiver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("Archiving published articles", "bucket", cfg.Bucket)
	return archiver, nil
}

func newRouter(cfg *config.Config, log *slog.Logger, handler *admin.Handler) *gin.Engine {
	router := gin.New()
	// Use our custom recovery middleware instead of the default one.
	router.Use(customRecovery(log))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	admin.SetupRoutes(router, handler, cfg)
	return router
}

// newApp wires every component on top of an initialized store.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, store db.Service) (*app, error) {
	a := &app{}

	sealer, err := newSealer(cfg.Vault, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault sealer: %w", err)
	}
	km := keymanager.NewKeyManager(store, sealer, cfg.Vault, log)

	registry := provider.NewRegistry(cfg.Providers)
	dispatcher := provider.NewDispatcher(km, registry, time.Duration(cfg.Providers.TimeoutSeconds)*time.Second, log)

	guard, closeGuard, err := newGuard(cfg.Generation, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeGuard)

	orchestrator := generator.NewOrchestrator(store, dispatcher, guard, log)

	archiver, err := newArchiver(ctx, cfg.Publisher.Archive, log)
	if err != nil {
		a.close(log)
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}
	wp := publisher.NewWordPressClient(time.Duration(cfg.Publisher.TimeoutSeconds) * time.Second)
	pub := publisher.NewPublisher(store, wp, archiver, cfg.Publisher.HeadingColors, log)

	a.scheduler = scheduler.NewScheduler(store, orchestrator, pub, log)
	if err := a.scheduler.SyncAll(); err != nil {
		a.close(log)
		return nil, fmt.Errorf("failed to schedule project jobs: %w", err)
	}
	if cfg.Vault.RevivalSchedule != "" {
		err := a.scheduler.AddMaintenance(cfg.Vault.RevivalSchedule, "key-revival", func(ctx context.Context) {
			if n := km.ReviveDisabledKeys(ctx, registry.Probe); n > 0 {
				log.Info("Revived disabled keys", "count", n)
			}
		})
		if err != nil {
			a.close(log)
			return nil, fmt.Errorf("invalid vault.revival_schedule: %w", err)
		}
	}

	projects := project.NewService(store, a.scheduler, log)
	handler := admin.NewHandler(km, projects, store, orchestrator, pub, a.scheduler, log)
	a.router = newRouter(cfg, log, handler)
	return a, nil
}

func setupAndRunServer(cfg *config.Config, log *slog.Logger, store db.Service) error {
	a, err := newApp(context.Background(), cfg, log, store)
	if err != nil {
		return err
	}
	defer a.close(log)

	a.scheduler.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		<-a.scheduler.Stop().Done()
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Running jobs see a cancelled context and get the rest of the window to finish.
	select {
	case <-a.scheduler.Stop().Done():
		log.Info("Scheduler stopped")
	case <-ctx.Done():
		log.Warn("Scheduler jobs still running at shutdown")
	}
	return nil
}

func main() {
	cfg, warnings, err := config.LoadConfig("config.yaml")
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.NewService(cfg.Database)
	if err != nil {
		log.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	log.Info("Database initialized", "type", cfg.Database.Type)

	if err := setupAndRunServer(cfg, log, database); err != nil {
		log.Error("Server error", "error", err)
		database.Close()
		os.Exit(1)
	}
	log.Info("Server exiting")
}

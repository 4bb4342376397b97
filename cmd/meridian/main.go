package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/api"
	"github.com/meridianfi/meridian/internal/config"
	"github.com/meridianfi/meridian/internal/conversation"
	"github.com/meridianfi/meridian/internal/memory"
	"github.com/meridianfi/meridian/internal/model"
	"github.com/meridianfi/meridian/internal/policy"
	"github.com/meridianfi/meridian/internal/store"
	"github.com/meridianfi/meridian/internal/tool"
	"github.com/meridianfi/meridian/internal/trace"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Meridian...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/meridian.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Model gateway: constructed once and shared. A bad mode or
	// missing credentials is fatal here, before any call is attempted.
	gateway, err := model.New(model.Config{
		Mode:            cfg.Model.Mode,
		Endpoint:        cfg.Model.Endpoint,
		APIKey:          cfg.Model.APIKey,
		SandboxCommand:  cfg.Model.SandboxCommand,
		ContainerBinary: cfg.Model.ContainerBinary,
		Timeout:         time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("model gateway init failed", zap.Error(err))
	}

	st, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer st.Close()
	if err := st.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	var notifier policy.Notifier
	if cfg.Approvals.SlackWebhookURL != "" {
		notifier = policy.NewSlackNotifier(cfg.Approvals.SlackWebhookURL, logger)
		logger.Info("Approval notifications enabled")
	}
	gate := policy.NewGate(st, notifier, logger)
	recorder := trace.NewRecorder(st, logger)
	mem := memory.NewService(st, logger)

	freshnessMaxAge := 24 * time.Hour
	if cfg.Advisor.FreshnessMaxAgeHours > 0 {
		freshnessMaxAge = time.Duration(cfg.Advisor.FreshnessMaxAgeHours * float64(time.Hour))
	}

	dispatcher, err := tool.NewDispatcher(st, mem, st, gate, recorder, freshnessMaxAge, logger)
	if err != nil {
		logger.Fatal("tool dispatcher init failed", zap.Error(err))
	}

	var locker conversation.Locker
	if cfg.Database.Redis.URL != "" {
		turnLock, lockErr := conversation.NewRedisTurnLock(cfg.Database.Redis.URL, logger)
		if lockErr != nil {
			logger.Warn("Redis unavailable, turns not serialized across processes", zap.Error(lockErr))
		} else {
			defer turnLock.Close()
			locker = turnLock
		}
	}

	orc := conversation.New(gateway, dispatcher, st, st, recorder, locker, conversation.Options{
		Model:           cfg.Model.Model,
		MaxTokens:       cfg.Model.MaxTokens,
		MaxIterations:   cfg.Advisor.MaxToolIterations,
		FreshnessMaxAge: freshnessMaxAge,
	}, logger)

	handler := api.NewHandler(orc, gate, st, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Meridian listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Meridian...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

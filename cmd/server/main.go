package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/autocontrol/internal/api"
	"github.com/t77yq/autocontrol/internal/auth"
	"github.com/t77yq/autocontrol/internal/config"
	"github.com/t77yq/autocontrol/internal/executor"
	"github.com/t77yq/autocontrol/internal/handler"
	"github.com/t77yq/autocontrol/internal/monitor"
	"github.com/t77yq/autocontrol/internal/scheduler"
	"github.com/t77yq/autocontrol/internal/service"
	"github.com/t77yq/autocontrol/internal/storage"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to the configuration file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	bootstrap, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	cfgManager := config.NewManager(*configPath, bootstrap)
	cfg, err := cfgManager.Load()
	if err != nil {
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	level := zap.NewAtomicLevel()
	setLogLevel(level, cfg.Log.Level, bootstrap)
	logger, err := newLogger(cfg.Log, level)
	if err != nil {
		bootstrap.Fatal("Failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	cfgManager.OnChange(func(c *config.Config) {
		setLogLevel(level, c.Log.Level, logger)
	})
	cfgManager.Watch()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer kv.Close()

	settings := storage.NewSettings(kv, cfg.Actions.AllowedURLPrefix)
	if err := settings.SeedScriptURL(ctx, cfg.Actions.Endpoint); err != nil {
		logger.Warn("Failed to seed script URL", zap.Error(err))
	}

	invoker := handler.NewHTTPActionInvoker(settings, handler.ActionInvokerConfig{
		Timeout:   cfg.Actions.Timeout,
		RateLimit: cfg.Actions.RateLimit,
		Burst:     cfg.Actions.Burst,
	}, logger)

	notifier, nc := newNotifier(cfg.NATS, cfg.App.Name, logger)
	if nc != nil {
		defer nc.Close()
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}

	tasks := storage.NewTaskStore(kv, logger)
	executionLog := storage.NewExecutionLog(kv, cfg.Scheduler.LogCapacity, logger)
	taskExecutor := executor.NewExecutor(executor.ExecutorConfig{
		QueueSize: cfg.Scheduler.QueueSize,
	}, invoker, tasks, executionLog, notifier, logger)
	checker := scheduler.NewChecker(scheduler.CheckerConfig{
		Interval: cfg.Scheduler.PollInterval,
		Location: location,
	}, tasks, taskExecutor, logger)
	taskScheduler := scheduler.NewService(tasks, executionLog, checker, taskExecutor, logger)

	if err := taskScheduler.Load(ctx); err != nil {
		logger.Fatal("Failed to load scheduler state", zap.Error(err))
	}
	taskExecutor.Start(ctx)
	if err := taskScheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	users := auth.NewUserStore(kv, logger)
	if err := users.Load(ctx, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("Failed to load users", zap.Error(err))
	}

	stats := monitor.NewStatsCollector(invoker, cfg.Stats.RefreshInterval, logger)
	if err := stats.Start(ctx); err != nil {
		logger.Fatal("Failed to start stats collector", zap.Error(err))
	}

	apiServer := api.NewServer(api.Dependencies{
		Scheduler: taskScheduler,
		Users:     users,
		Sessions:  auth.NewSessionManager(cfg.Auth.SessionTTL, logger),
		Settings:  settings,
		Activity:  storage.NewActivityLog(storage.DefaultActivityCapacity),
		Invoker:   invoker,
		Stats:     stats,
		Health:    monitor.NewHealthChecker(cfg.Stats.CPUSample, logger),
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	stats.Stop()
	taskScheduler.Stop()
	taskExecutor.Stop()

	logger.Info("Server shut down gracefully")
}

func newLogger(cfg config.LogConfig, level zap.AtomicLevel) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func setLogLevel(level zap.AtomicLevel, name string, logger *zap.Logger) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		logger.Warn("Invalid log level, keeping current", zap.String("level", name), zap.Error(err))
		return
	}
	if level.Level() != l {
		level.SetLevel(l)
		logger.Info("Log level set", zap.String("level", l.String()))
	}
}

// newNotifier connects to NATS when enabled and falls back to logging
// notifications when the broker is unreachable.
func newNotifier(cfg config.NATSConfig, name string, logger *zap.Logger) (executor.Notifier, *nats.Conn) {
	if !cfg.Enabled {
		return service.NewLogNotifier(logger), nil
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	var err error
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Error("NATS unavailable, notifications go to the log", zap.Error(err))
		return service.NewLogNotifier(logger), nil
	}

	js, err := nc.JetStream()
	if err != nil {
		logger.Error("Failed to create JetStream context", zap.Error(err))
		nc.Close()
		return service.NewLogNotifier(logger), nil
	}

	notifier, err := service.NewNATSNotifier(js, logger)
	if err != nil {
		logger.Error("Failed to set up notification stream", zap.Error(err))
		nc.Close()
		return service.NewLogNotifier(logger), nil
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return notifier, nc
}

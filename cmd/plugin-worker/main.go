// Plugin Worker — выполняет tasks слоя выполнения плагинов.
//
// Worker:
//   - Получает task envelopes из RabbitMQ
//   - Держит registry загруженных плагинов (reload без рестарта)
//   - Прогоняет события через pipeline из event-хуков
//   - Выполняет cadence-корзины расписания
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kappa90/posthog/internal/cache"
	"github.com/kappa90/posthog/internal/clock"
	"github.com/kappa90/posthog/internal/config"
	"github.com/kappa90/posthog/internal/mq"
	"github.com/kappa90/posthog/internal/plugins"
	"github.com/kappa90/posthog/internal/repo"
	"github.com/kappa90/posthog/internal/retry"
	"github.com/kappa90/posthog/internal/scheduler"
	"github.com/kappa90/posthog/internal/telemetry"
	"github.com/kappa90/posthog/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting plugin-worker")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		MaxDelay:    cfg.Retry.MaxDelay.Std(),
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	pluginRepo := repo.NewPluginConfigRepo(pool)

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	producer, err := mq.NewProducer(mqConn, logger)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}

	// Redis: кэш доступности организаций. Недоступный Redis не блокирует
	// старт — воркер работает без кэша, каждый pipeline ходит в БД.
	var orgCache worker.OrganizationCache
	redisPool, err := cache.NewPool(ctx, cache.PoolConfig{
		URL:            cfg.RedisURL,
		MaxSize:        cfg.CachePoolSize,
		AcquireTimeout: cfg.CacheAcquireTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		logger.Warn("Redis not available, running without organization cache", "error", err)
	} else {
		defer redisPool.Close()
		orgCache = cache.NewOrganizationCache(redisPool)
		logger.Info("Redis connected")
	}

	// Plugin manager
	manager := plugins.NewManager(plugins.ManagerConfig{
		Store:       pluginRepo,
		Factories:   plugins.BuiltinFactories(),
		Clock:       clock.System{},
		RetryPolicy: retryPolicy,
		JitterMax:   cfg.JitterMax(),
		Logger:      logger,
	})

	if err := manager.Setup(ctx); err != nil {
		logger.Error("failed to load plugins", "error", err)
		os.Exit(1)
	}
	logger.Info("plugins loaded", "count", manager.Registry().Len())

	sched := scheduler.New(scheduler.Config{
		Manager: manager,
		Logger:  logger,
	})
	if err := sched.Reload(ctx); err != nil {
		logger.Error("failed to build schedule", "error", err)
		os.Exit(1)
	}

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		Manager:     manager,
		Scheduler:   sched,
		Producer:    producer,
		Cache:       orgCache,
		Orgs:        pluginRepo,
		RetryPolicy: retryPolicy,
		Clock:       clock.System{},
		Logger:      logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Dispatcher:  dispatcher,
		Conn:        mqConn,
		PoolSize:    cfg.WorkerPoolSize,
		TaskTimeout: cfg.TaskTimeout.Std(),
		Logger:      logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Внутренний cron-триггер cadence-задач (для деплоев без внешнего
	// планировщика). Триггер идёт через очередь, как внешние envelopes.
	var ticker *scheduler.Ticker
	if cfg.InternalTicker {
		ticker, err = scheduler.NewTicker(scheduler.TickerConfig{
			Invoke: func(tickCtx context.Context, task string) {
				if pubErr := producer.PublishTask(tickCtx, task, nil); pubErr != nil {
					logger.Error("failed to publish cadence task", "task", task, "error", pubErr)
				}
			},
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create internal ticker", "error", err)
			os.Exit(1)
		}
		ticker.Start()
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем в обратном порядке: триггер, consumer'ы, flush,
	// teardown плагинов.
	if ticker != nil {
		ticker.Stop()
	}
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.TaskTimeout.Std())
	defer shutdownCancel()

	if err := producer.Flush(shutdownCtx); err != nil {
		logger.Warn("flush on shutdown failed", "error", err)
	}
	if err := manager.Teardown(shutdownCtx); err != nil {
		logger.Warn("plugin teardown failed", "error", err)
	}

	logger.Info("plugin-worker stopped")
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kappa90/posthog/internal/mq"
)

// Default configuration values.
const (
	defaultPoolSize    = 10
	defaultTaskTimeout = 30 * time.Second
)

// Worker потребляет task envelopes из очереди RabbitMQ.
//
// Worker — stateless компонент системы, который:
//   - Держит фиксированный пул consumer'ов очереди задач (prefetch 1 на
//     каждого: занятый consumer не резервирует лишние сообщения)
//   - Прогоняет каждый envelope через Dispatcher с таймаутом на инвокацию
//   - Через ack/nack решает судьбу сообщения: недоступность зависимости —
//     requeue, постоянная ошибка — DLQ
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	dispatcher *Dispatcher
	conn       *mq.Connection

	consumers []*mq.Consumer

	poolSize    int
	taskTimeout time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Dispatcher — таблица задач.
	Dispatcher *Dispatcher

	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// PoolSize — размер пула consumer'ов (default: 10).
	PoolSize int

	// TaskTimeout — таймаут одной инвокации (default: 30s).
	TaskTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		dispatcher:  cfg.Dispatcher,
		conn:        cfg.Conn,
		poolSize:    poolSize,
		taskTimeout: taskTimeout,
		logger:      logger,
	}
}

// Start запускает пул consumer'ов.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"pool_size", w.poolSize,
		"task_timeout", w.taskTimeout,
	)

	for i := 0; i < w.poolSize; i++ {
		consumer := mq.NewConsumer(w.conn, w.logger.With("consumer", i), mq.ConsumerConfig{
			Queue:    string(mq.QueueJobs),
			Handler:  w.handleEnvelope,
			Prefetch: 1,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("task consumer error", "error", err)
			}
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// handleEnvelope обрабатывает одно сообщение очереди задач.
func (w *Worker) handleEnvelope(ctx context.Context, delivery *mq.Delivery) error {
	envelope, err := mq.ParsePayload[mq.TaskEnvelope](&delivery.Message)
	if err != nil {
		// Постоянная ошибка: сообщение уйдёт в DLQ.
		return fmt.Errorf("parse task envelope: %w", err)
	}
	if envelope.Task == "" {
		return fmt.Errorf("%w: envelope has no task name", ErrBadArgs)
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	started := time.Now()
	_, err = w.dispatcher.Run(taskCtx, envelope.Task, envelope.Args)
	if err != nil {
		return err
	}

	w.logger.Debug("task completed",
		"task", envelope.Task,
		"duration", time.Since(started),
	)
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	for _, consumer := range w.consumers {
		consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

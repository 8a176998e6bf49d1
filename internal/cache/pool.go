// Package cache — кэш доступности плагинов по организациям поверх Redis.
//
// Соединения с Redis держатся в ограниченном пуле (acquire/use/release)
// с блокирующим захватом по таймауту. Записи инвалидируются явно задачей
// invalidateOrganizationCache, без TTL: после инвалидации ключ не может
// быть прочитан как hit.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/redis/go-redis/v9"
)

// Pool — ограниченный пул одиночных Redis-соединений.
//
// Каждый ресурс — клиент с одним соединением (PoolSize=1); размером пула
// управляет puddle, что даёт блокирующий Acquire с таймаутом и жёсткую
// верхнюю границу на число соединений.
type Pool struct {
	inner          *puddle.Pool[*redis.Client]
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// PoolConfig — конфигурация пула.
type PoolConfig struct {
	// URL — адрес Redis (redis://...).
	URL string

	// MaxSize — максимум соединений в пуле.
	MaxSize int32

	// AcquireTimeout — сколько ждать свободное соединение.
	AcquireTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// NewPool создаёт пул и проверяет доступность Redis первым соединением.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Одно соединение на ресурс: пулом управляет puddle.
	opts.PoolSize = 1

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 4
	}
	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	constructor := func(ctx context.Context) (*redis.Client, error) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return client, nil
	}
	destructor := func(client *redis.Client) {
		_ = client.Close()
	}

	inner, err := puddle.NewPool(&puddle.Config[*redis.Client]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("new redis pool: %w", err)
	}

	p := &Pool{
		inner:          inner,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}

	// Прогреваем и проверяем соединение.
	if err := p.WithClient(ctx, func(c *redis.Client) error { return nil }); err != nil {
		inner.Close()
		return nil, err
	}

	return p, nil
}

// WithClient захватывает соединение из пула, выполняет fn и освобождает
// соединение на любом пути выхода.
func (p *Pool) WithClient(ctx context.Context, fn func(client *redis.Client) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	resource, err := p.inner.Acquire(acquireCtx)
	if err != nil {
		return fmt.Errorf("acquire redis connection: %w", err)
	}
	defer resource.Release()

	return fn(resource.Value())
}

// Close закрывает пул и все соединения.
func (p *Pool) Close() {
	p.inner.Close()
}

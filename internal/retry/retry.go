package retry

import (
	"context"
	"time"

	"github.com/kappa90/posthog/internal/clock"
	"github.com/kappa90/posthog/internal/telemetry"
)

// Значения по умолчанию для Policy. Используются, когда конфигурация
// не задаёт собственные.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Policy — политика повторов. Количество попыток и задержки приходят из
// конфигурации, не хардкодятся по месту вызова.
type Policy struct {
	// MaxAttempts — общее число попыток, включая первую.
	MaxAttempts int

	// BaseDelay — задержка перед вторым вызовом.
	BaseDelay time.Duration

	// MaxDelay — потолок экспоненциального роста.
	MaxDelay time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// backoff вычисляет задержку перед попыткой attempt (attempt >= 1 — номер
// уже сделанной попытки): BaseDelay * 2^(attempt-1), с потолком MaxDelay.
func backoff(attempt int, p Policy) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// IfRetriable выполняет op; транзиентные инфраструктурные ошибки
// повторяются с экспоненциальной задержкой по policy, остальные
// возвращаются сразу без повторов.
//
// После исчерпания попыток возвращается DependencyUnavailableError с
// именем dependency и последней исходной ошибкой в Cause. Wrapper никогда
// не глотает ошибку: либо значение, либо ошибка.
func IfRetriable[T any](ctx context.Context, dependency string, policy Policy, clk clock.Clock, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	policy = policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		// Постоянная/логическая ошибка — наружу без изменений.
		if !Retriable(err) {
			return zero, err
		}

		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		telemetry.DependencyRetriesTotal.WithLabelValues(dependency).Inc()

		if sleepErr := clk.Sleep(ctx, backoff(attempt, policy)); sleepErr != nil {
			// Контекст отменён во время ожидания — дальше не повторяем.
			break
		}
	}

	telemetry.DependencyUnavailableTotal.WithLabelValues(dependency).Inc()

	return zero, &DependencyUnavailableError{
		Dependency: dependency,
		Message:    lastErr.Error(),
		Cause:      lastErr,
	}
}

// Do — вариант IfRetriable для операций без результата.
func Do(ctx context.Context, dependency string, policy Policy, clk clock.Clock, op func(ctx context.Context) error) error {
	_, err := IfRetriable(ctx, dependency, policy, clk, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Package clock абстрагирует время для retry backoff и reload jitter.
//
// Все задержки в коде запрашиваются через интерфейс Clock, а не через
// time.Sleep напрямую — тесты подставляют Fake и проматывают время
// детерминированно, без реальных ожиданий.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock — источник времени и задержек.
type Clock interface {
	// Now возвращает текущее время.
	Now() time.Time

	// Sleep ждёт d или отмену контекста (возвращает ctx.Err()).
	Sleep(ctx context.Context, d time.Duration) error
}

// System — реальные часы процесса.
type System struct{}

// Now возвращает time.Now().
func (System) Now() time.Time { return time.Now() }

// Sleep ждёт d с учётом отмены контекста.
func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fake — виртуальные часы для тестов.
//
// Sleep возвращается сразу, сдвигая виртуальное время вперёд и записывая
// запрошенную задержку. Тест проверяет Slept() вместо измерения wall-clock.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewFake создаёт Fake с фиксированной начальной точкой.
func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now возвращает текущее виртуальное время.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep сдвигает виртуальное время на d и записывает задержку.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.slept = append(f.slept, d)
	return nil
}

// Slept возвращает все запрошенные задержки в порядке вызовов.
func (f *Fake) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.slept))
	copy(out, f.slept)
	return out
}

package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/kappa90/posthog/internal/plugins"
)

// Ticker — внутренний cron-триггер cadence-задач для деплоев без внешнего
// планировщика. Каждое срабатывание проходит через тот же dispatch table,
// что и внешние envelopes.
type Ticker struct {
	cron   *cron.Cron
	invoke func(ctx context.Context, task string)
	logger *slog.Logger
}

// TickerConfig — конфигурация Ticker.
type TickerConfig struct {
	// Invoke выполняет task по имени (обычно замыкание на dispatch table).
	Invoke func(ctx context.Context, task string)

	// Logger
	Logger *slog.Logger
}

// NewTicker создаёт Ticker с тремя cadence-расписаниями.
func NewTicker(cfg TickerConfig) (*Ticker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Ticker{
		cron:   cron.New(),
		invoke: cfg.Invoke,
		logger: logger,
	}

	entries := []struct {
		spec string
		task plugins.Cadence
	}{
		{"* * * * *", plugins.CadenceEveryMinute},
		{"0 * * * *", plugins.CadenceEveryHour},
		{"0 0 * * *", plugins.CadenceEveryDay},
	}

	for _, e := range entries {
		task := string(e.task)
		if _, err := t.cron.AddFunc(e.spec, func() {
			t.invoke(context.Background(), task)
		}); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Start запускает cron-расписание.
func (t *Ticker) Start() {
	t.cron.Start()
	t.logger.Info("internal cadence ticker started")
}

// Stop останавливает расписание, дожидаясь завершения текущих срабатываний.
func (t *Ticker) Stop() {
	<-t.cron.Stop().Done()
	t.logger.Info("internal cadence ticker stopped")
}

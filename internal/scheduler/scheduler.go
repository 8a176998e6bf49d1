package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/kappa90/posthog/internal/plugins"
)

// Table — снимок таблицы расписания.
type Table struct {
	buckets map[plugins.Cadence][]plugins.PluginConfigID
}

// emptyTable — снимок до первого успешного reload.
func emptyTable() *Table {
	return &Table{buckets: make(map[plugins.Cadence][]plugins.PluginConfigID)}
}

// Bucket возвращает идентификаторы конфигураций в корзине.
// Слайс принадлежит снимку и не должен мутироваться.
func (t *Table) Bucket(c plugins.Cadence) []plugins.PluginConfigID {
	return t.buckets[c]
}

// All возвращает сериализуемую форму таблицы (ответ задачи getSchedule).
func (t *Table) All() map[string][]int64 {
	out := make(map[string][]int64, len(plugins.Cadences))
	for _, c := range plugins.Cadences {
		ids := make([]int64, 0, len(t.buckets[c]))
		for _, id := range t.buckets[c] {
			ids = append(ids, int64(id))
		}
		out[string(c)] = ids
	}
	return out
}

// Scheduler — владелец таблицы расписания.
type Scheduler struct {
	manager *plugins.Manager
	logger  *slog.Logger

	table atomic.Pointer[Table]
	ready atomic.Bool
}

// Config — конфигурация Scheduler.
type Config struct {
	// Manager — источник снимков registry и исполнитель хуков.
	Manager *plugins.Manager

	// Logger
	Logger *slog.Logger
}

// New создаёт Scheduler с пустой таблицей (Ready() == false).
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		manager: cfg.Manager,
		logger:  logger,
	}
	s.table.Store(emptyTable())
	return s
}

// Reload перестраивает таблицу по одному снимку registry, взятому на входе:
// консистентность с registry гарантируется в пределах прохода. Таблица
// публикуется атомарной заменой целиком.
func (s *Scheduler) Reload(ctx context.Context) error {
	reg := s.manager.Registry()

	buckets := make(map[plugins.Cadence][]plugins.PluginConfigID, len(plugins.Cadences))
	for _, inst := range reg.Ordered() {
		for _, c := range plugins.Cadences {
			if inst.Implements(c) {
				buckets[c] = append(buckets[c], inst.ID)
			}
		}
	}

	s.table.Store(&Table{buckets: buckets})
	s.ready.Store(true)

	s.logger.Info("schedule reloaded",
		"every_minute", len(buckets[plugins.CadenceEveryMinute]),
		"every_hour", len(buckets[plugins.CadenceEveryHour]),
		"every_day", len(buckets[plugins.CadenceEveryDay]),
	)

	return nil
}

// Schedule возвращает текущий снимок таблицы.
func (s *Scheduler) Schedule() *Table {
	return s.table.Load()
}

// Ready сообщает, был ли хотя бы один успешный Reload.
func (s *Scheduler) Ready() bool {
	return s.ready.Load()
}

// RunCadence вызывает хук cadence у каждого плагина корзины. Вызовы
// независимы: ошибка одного плагина логируется и не прерывает остальных.
func (s *Scheduler) RunCadence(ctx context.Context, c plugins.Cadence) {
	ids := s.Schedule().Bucket(c)
	if len(ids) == 0 {
		return
	}

	var failed int
	for _, id := range ids {
		if _, err := s.manager.RunHook(ctx, id, string(c), nil); err != nil {
			failed++
			s.logger.Error("scheduled hook failed",
				"cadence", c,
				"plugin_config_id", id,
				"error", err,
			)
		}
	}

	s.logger.Debug("cadence completed",
		"cadence", c,
		"plugins", len(ids),
		"failed", failed,
	)
}

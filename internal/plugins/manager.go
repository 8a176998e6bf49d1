package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kappa90/posthog/internal/clock"
	"github.com/kappa90/posthog/internal/repo"
	"github.com/kappa90/posthog/internal/retry"
	"github.com/kappa90/posthog/internal/telemetry"
)

// ConfigStore — конфигурационное хранилище плагинов (Postgres).
type ConfigStore interface {
	ListEnabled(ctx context.Context) ([]repo.PluginConfigRow, error)
}

// Manager управляет жизненным циклом registry плагинов.
type Manager struct {
	store       ConfigStore
	factories   map[string]Factory
	clk         clock.Clock
	retryPolicy retry.Policy
	jitterMax   time.Duration
	logger      *slog.Logger

	// mu сериализует setup/reload/teardown: один reload за раз.
	mu       sync.Mutex
	registry atomic.Pointer[Registry]
}

// ManagerConfig — конфигурация Manager.
type ManagerConfig struct {
	// Store — конфигурационное хранилище плагинов.
	Store ConfigStore

	// Factories — фабрики плагинов по имени.
	Factories map[string]Factory

	// Clock — источник задержек (jitter, retry backoff).
	Clock clock.Clock

	// RetryPolicy — политика повторов обращений к хранилищу.
	RetryPolicy retry.Policy

	// JitterMax — максимальная случайная пауза перед reload (0 — без паузы).
	JitterMax time.Duration

	// Logger
	Logger *slog.Logger
}

// NewManager создаёт Manager с пустым registry.
func NewManager(cfg ManagerConfig) *Manager {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factories := cfg.Factories
	if factories == nil {
		factories = make(map[string]Factory)
	}

	m := &Manager{
		store:       cfg.Store,
		factories:   factories,
		clk:         clk,
		retryPolicy: cfg.RetryPolicy,
		jitterMax:   cfg.JitterMax,
		logger:      logger,
	}
	m.registry.Store(newRegistry(nil))
	return m
}

// Registry возвращает текущий снимок. Никогда не nil.
func (m *Manager) Registry() *Registry {
	return m.registry.Load()
}

// Setup загружает включённые конфигурации плагинов и атомарно заменяет
// registry. Транзиентный сбой хранилища повторяет setup целиком; после
// исчерпания попыток — DependencyUnavailableError "Postgres". Ошибка
// загрузки отдельного плагина нефатальна: плагин исключается из снимка.
func (m *Manager) Setup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return retry.Do(ctx, "Postgres", m.retryPolicy, m.clk, m.setupLocked)
}

// Reload — jitter-пауза плюс setup. Retry wrapper обёрнут вокруг всего
// reload, не только вокруг паузы. Писатели сериализованы: второй reload
// ждёт завершения первого.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return retry.Do(ctx, "Postgres", m.retryPolicy, m.clk, func(ctx context.Context) error {
		if m.jitterMax > 0 {
			// Случайная пауза размазывает reload-нагрузку на хранилище
			// между одновременно работающими воркерами.
			jitter := time.Duration(rand.Int63n(int64(m.jitterMax)))
			m.logger.Debug("reload jitter", "delay", jitter)
			if err := m.clk.Sleep(ctx, jitter); err != nil {
				return err
			}
		}
		return m.setupLocked(ctx)
	})
}

// setupLocked выполняет одну попытку setup. Вызывается под m.mu.
func (m *Manager) setupLocked(ctx context.Context) error {
	rows, err := m.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load plugin configs: %w", err)
	}

	instances := make([]*Instance, 0, len(rows))
	for i := range rows {
		row := &rows[i]

		inst, err := m.load(row)
		if err != nil {
			// Нефатально: плагин исключается, setup продолжается.
			m.logger.Warn("plugin excluded from registry",
				"plugin_config_id", row.ID,
				"plugin", row.Plugin,
				"error", err,
			)
			telemetry.PluginLoadFailuresTotal.Inc()
			continue
		}

		instances = append(instances, inst)
	}

	// Атомарная замена целого снимка: читатели видят либо старый,
	// либо новый registry.
	m.registry.Store(newRegistry(instances))
	telemetry.LoadedPlugins.Set(float64(len(instances)))

	m.logger.Info("plugin registry loaded",
		"configured", len(rows),
		"loaded", len(instances),
	)

	return nil
}

// load создаёт экземпляр плагина из строки конфигурации.
func (m *Manager) load(row *repo.PluginConfigRow) (*Instance, error) {
	factory, ok := m.factories[row.Plugin]
	if !ok {
		return nil, &LoadError{ID: PluginConfigID(row.ID), Name: row.Plugin, Cause: ErrFactoryNotRegistered}
	}

	inst := &Instance{
		ID:             PluginConfigID(row.ID),
		Name:           row.Plugin,
		TeamID:         row.TeamID,
		OrganizationID: row.OrganizationID,
		Order:          row.Order,
		State:          StateLoading,
	}

	caps, err := factory(row.Config)
	if err != nil {
		return nil, &LoadError{ID: inst.ID, Name: inst.Name, Cause: err}
	}

	inst.caps = caps
	inst.State = StateReady
	return inst, nil
}

// Teardown вызывает teardown-хуки всех загруженных плагинов и освобождает
// registry. Best-effort: ошибка одного плагина не блокирует остальных, все
// ошибки собираются и возвращаются разом. Повторный вызов — no-op.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Снимаем registry до вызова хуков: читатели сразу видят пустое
	// состояние, хук не может быть вызван дважды вторым teardown.
	old := m.registry.Swap(newRegistry(nil))
	telemetry.LoadedPlugins.Set(0)

	var result *multierror.Error
	for _, inst := range old.Ordered() {
		if inst.caps.Teardown == nil {
			inst.State = StateUnloaded
			continue
		}

		inst.State = StateTearingDown
		if err := inst.caps.Teardown(ctx); err != nil {
			m.logger.Warn("plugin teardown failed",
				"plugin_config_id", inst.ID,
				"plugin", inst.Name,
				"error", err,
			)
			result = multierror.Append(result, fmt.Errorf("teardown plugin %d (%s): %w", inst.ID, inst.Name, err))
		}
		inst.State = StateUnloaded
	}

	if old.Len() > 0 {
		m.logger.Info("plugin registry released", "unloaded", old.Len())
	}

	return result.ErrorOrNil()
}

// RunHook ищет плагин в текущем снимке и вызывает именованный хук.
//
// Имена: processEvent (args — событие), runEveryMinute/Hour/Day,
// любое другое имя трактуется как job-хук с payload args.
func (m *Manager) RunHook(ctx context.Context, id PluginConfigID, hook string, args map[string]any) (any, error) {
	inst, ok := m.Registry().Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: plugin config %d", ErrPluginNotLoaded, id)
	}

	switch hook {
	case HookProcessEvent:
		if inst.caps.ProcessEvent == nil {
			return nil, fmt.Errorf("%w: plugin config %d has no %s", ErrHookNotImplemented, id, hook)
		}
		return inst.caps.ProcessEvent(ctx, args)

	case string(CadenceEveryMinute), string(CadenceEveryHour), string(CadenceEveryDay):
		fn := inst.scheduledHook(Cadence(hook))
		if fn == nil {
			return nil, fmt.Errorf("%w: plugin config %d has no %s", ErrHookNotImplemented, id, hook)
		}
		return nil, fn(ctx)

	default:
		fn, ok := inst.caps.Jobs[hook]
		if !ok {
			return nil, fmt.Errorf("%w: plugin config %d has no job %s", ErrHookNotImplemented, id, hook)
		}
		return nil, fn(ctx, args)
	}
}

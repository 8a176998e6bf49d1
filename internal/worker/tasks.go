package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kappa90/posthog/internal/clock"
	"github.com/kappa90/posthog/internal/plugins"
	"github.com/kappa90/posthog/internal/retry"
	"github.com/kappa90/posthog/internal/scheduler"
	"github.com/kappa90/posthog/internal/telemetry"
)

// TaskName — имя задачи в dispatch table.
type TaskName string

// Задачи, известные воркеру.
const (
	TaskRunPluginJob                TaskName = "runPluginJob"
	TaskRunEveryMinute              TaskName = "runEveryMinute"
	TaskRunEveryHour                TaskName = "runEveryHour"
	TaskRunEveryDay                 TaskName = "runEveryDay"
	TaskGetSchedule                 TaskName = "getSchedule"
	TaskScheduleReady               TaskName = "scheduleReady"
	TaskReloadPlugins               TaskName = "reloadPlugins"
	TaskReloadSchedule              TaskName = "reloadSchedule"
	TaskTeardownPlugins             TaskName = "teardownPlugins"
	TaskFlushMessages               TaskName = "flushMessages"
	TaskInvalidateOrganizationCache TaskName = "invalidateOrganizationCache"
	TaskRunEventPipeline            TaskName = "runEventPipeline"
)

// Handler выполняет одну инвокацию задачи.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Producer — сторона брокера, нужная задачам.
type Producer interface {
	Flush(ctx context.Context) error
	PublishProcessedEvent(ctx context.Context, event map[string]any) error
}

// OrganizationStore отвечает на вопрос "разрешены ли организации плагины".
type OrganizationStore interface {
	OrganizationPluginsAvailable(ctx context.Context, organizationID string) (bool, error)
}

// OrganizationCache — кэш ответов OrganizationStore. Может отсутствовать.
type OrganizationCache interface {
	Get(ctx context.Context, organizationID string) (available bool, ok bool, err error)
	Set(ctx context.Context, organizationID string, available bool) error
	Invalidate(ctx context.Context, organizationID string) error
}

// Dispatcher — таблица задач воркера. Таблица собирается один раз в
// NewDispatcher и после этого не меняется.
type Dispatcher struct {
	manager   *plugins.Manager
	scheduler *scheduler.Scheduler
	producer  Producer
	cache     OrganizationCache
	orgs      OrganizationStore
	policy    retry.Policy
	clk       clock.Clock
	logger    *slog.Logger

	table map[TaskName]Handler
}

// DispatcherConfig — зависимости Dispatcher.
type DispatcherConfig struct {
	// Manager — жизненный цикл плагинов и выполнение хуков.
	Manager *plugins.Manager

	// Scheduler — таблица расписания и cadence-проходы.
	Scheduler *scheduler.Scheduler

	// Producer — публикация и flush исходящих сообщений.
	Producer Producer

	// Cache — кэш доступности организаций. nil — без кэша, каждый
	// pipeline ходит в хранилище.
	Cache OrganizationCache

	// Orgs — источник истины по доступности плагинов для организации.
	Orgs OrganizationStore

	// RetryPolicy — политика повторов обращений к зависимостям.
	RetryPolicy retry.Policy

	// Clock — источник времени для задержек повторов.
	Clock clock.Clock

	// Logger
	Logger *slog.Logger
}

// NewDispatcher собирает dispatch table.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	d := &Dispatcher{
		manager:   cfg.Manager,
		scheduler: cfg.Scheduler,
		producer:  cfg.Producer,
		cache:     cfg.Cache,
		orgs:      cfg.Orgs,
		policy:    cfg.RetryPolicy,
		clk:       clk,
		logger:    logger,
	}

	d.table = map[TaskName]Handler{
		TaskRunPluginJob:                d.runPluginJob,
		TaskRunEveryMinute:              d.cadenceHandler(plugins.CadenceEveryMinute),
		TaskRunEveryHour:                d.cadenceHandler(plugins.CadenceEveryHour),
		TaskRunEveryDay:                 d.cadenceHandler(plugins.CadenceEveryDay),
		TaskGetSchedule:                 d.getSchedule,
		TaskScheduleReady:               d.scheduleReady,
		TaskReloadPlugins:               d.reloadPlugins,
		TaskReloadSchedule:              d.reloadSchedule,
		TaskTeardownPlugins:             d.teardownPlugins,
		TaskFlushMessages:               d.flushMessages,
		TaskInvalidateOrganizationCache: d.invalidateOrganizationCache,
		TaskRunEventPipeline:            d.runEventPipeline,
	}

	return d
}

// Run выполняет задачу по имени. Неизвестное имя — постоянная ошибка.
func (d *Dispatcher) Run(ctx context.Context, task string, args map[string]any) (any, error) {
	handler, ok := d.table[TaskName(task)]
	if !ok {
		telemetry.TasksTotal.WithLabelValues(task, "unknown").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}

	result, err := handler(ctx, args)
	if err != nil {
		telemetry.TasksTotal.WithLabelValues(task, "failed").Inc()
		return nil, err
	}

	telemetry.TasksTotal.WithLabelValues(task, "ok").Inc()
	return result, nil
}

// runPluginJob выполняет именованный job-хук одного плагина.
// Ошибка хука возвращается без изменений: для вызывающего она постоянная.
func (d *Dispatcher) runPluginJob(ctx context.Context, args map[string]any) (any, error) {
	id, ok := argInt64(args, "pluginConfigId")
	if !ok {
		return nil, fmt.Errorf("%w: runPluginJob needs numeric pluginConfigId", ErrBadArgs)
	}
	jobType, ok := args["type"].(string)
	if !ok || jobType == "" {
		return nil, fmt.Errorf("%w: runPluginJob needs job type", ErrBadArgs)
	}
	payload, _ := args["payload"].(map[string]any)

	return d.manager.RunHook(ctx, plugins.PluginConfigID(id), jobType, payload)
}

// cadenceHandler превращает cadence-корзину в Handler. Ошибки отдельных
// плагинов не всплывают: проход корзины всегда завершается.
func (d *Dispatcher) cadenceHandler(c plugins.Cadence) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		d.scheduler.RunCadence(ctx, c)
		return nil, nil
	}
}

func (d *Dispatcher) getSchedule(ctx context.Context, args map[string]any) (any, error) {
	return d.scheduler.Schedule().All(), nil
}

func (d *Dispatcher) scheduleReady(ctx context.Context, args map[string]any) (any, error) {
	return d.scheduler.Ready(), nil
}

func (d *Dispatcher) reloadPlugins(ctx context.Context, args map[string]any) (any, error) {
	return nil, d.manager.Reload(ctx)
}

func (d *Dispatcher) reloadSchedule(ctx context.Context, args map[string]any) (any, error) {
	return nil, d.scheduler.Reload(ctx)
}

// teardownPlugins сбрасывает буфер producer'а и вызывает teardown-хуки.
// Неудавшийся flush не отменяет teardown: сообщения останутся в pending,
// а ресурсы плагинов всё равно должны быть освобождены.
func (d *Dispatcher) teardownPlugins(ctx context.Context, args map[string]any) (any, error) {
	if err := retry.Do(ctx, "RabbitMQ", d.policy, d.clk, d.producer.Flush); err != nil {
		d.logger.Warn("flush before teardown failed", "error", err)
	}
	return nil, d.manager.Teardown(ctx)
}

func (d *Dispatcher) flushMessages(ctx context.Context, args map[string]any) (any, error) {
	return nil, retry.Do(ctx, "RabbitMQ", d.policy, d.clk, d.producer.Flush)
}

func (d *Dispatcher) invalidateOrganizationCache(ctx context.Context, args map[string]any) (any, error) {
	orgID, ok := args["organizationId"].(string)
	if !ok || orgID == "" {
		return nil, fmt.Errorf("%w: invalidateOrganizationCache needs organizationId", ErrBadArgs)
	}
	if d.cache == nil {
		return nil, nil
	}
	return nil, retry.Do(ctx, "Redis", d.policy, d.clk, func(ctx context.Context) error {
		return d.cache.Invalidate(ctx, orgID)
	})
}

// argInt64 извлекает числовой аргумент. После json.Unmarshal числа
// приходят как float64, но внутренние вызывающие передают и int.
func argInt64(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

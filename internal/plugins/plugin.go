package plugins

import (
	"context"
	"fmt"
)

// PluginConfigID — идентификатор конфигурации плагина в хранилище.
type PluginConfigID int64

// Cadence — периодичность scheduled-хука.
type Cadence string

// Cadence buckets.
const (
	CadenceEveryMinute Cadence = "runEveryMinute"
	CadenceEveryHour   Cadence = "runEveryHour"
	CadenceEveryDay    Cadence = "runEveryDay"
)

// Cadences — все корзины в фиксированном порядке.
var Cadences = []Cadence{CadenceEveryMinute, CadenceEveryHour, CadenceEveryDay}

// Имена нестандартных хуков для RunHook.
const (
	HookProcessEvent = "processEvent"
)

// EventHook обрабатывает событие pipeline. Возврат nil-события означает
// "событие отброшено".
type EventHook func(ctx context.Context, event map[string]any) (map[string]any, error)

// ScheduledHook — периодический хук (cadence bucket).
type ScheduledHook func(ctx context.Context) error

// JobHook — именованный job-хук, вызываемый задачей runPluginJob.
type JobHook func(ctx context.Context, payload map[string]any) error

// TeardownHook освобождает ресурсы плагина.
type TeardownHook func(ctx context.Context) error

// Capabilities — набор хуков плагина. Определяется один раз при загрузке
// и кэшируется в снимке registry: наличие хука не проверяется заново на
// каждом вызове.
type Capabilities struct {
	ProcessEvent   EventHook
	RunEveryMinute ScheduledHook
	RunEveryHour   ScheduledHook
	RunEveryDay    ScheduledHook
	Jobs           map[string]JobHook
	Teardown       TeardownHook
}

// Factory создаёт Capabilities из JSON-конфигурации плагина.
// Фабрики регистрируются по имени плагина при старте процесса.
type Factory func(config map[string]any) (Capabilities, error)

// Instance — загруженный экземпляр плагина, привязанный к одной
// конфигурации.
type Instance struct {
	// ID — идентификатор конфигурации плагина.
	ID PluginConfigID

	// Name — имя плагина (имя фабрики).
	Name string

	// TeamID — команда, которой принадлежит конфигурация.
	TeamID int64

	// OrganizationID — организация команды.
	OrganizationID string

	// Order — позиция в порядке выполнения pipeline.
	Order int

	// State — текущее состояние жизненного цикла.
	State State

	caps Capabilities
}

// Implements возвращает true, если плагин экспортирует хук данной cadence.
func (i *Instance) Implements(c Cadence) bool {
	return i.scheduledHook(c) != nil
}

// ImplementsProcessEvent возвращает true, если плагин участвует в pipeline.
func (i *Instance) ImplementsProcessEvent() bool {
	return i.caps.ProcessEvent != nil
}

// ProcessEvent вызывает event-хук плагина напрямую на этом экземпляре.
// Используется pipeline, которому нужен один снимок registry на весь
// проход (RunHook брал бы каждый раз текущий снимок).
func (i *Instance) ProcessEvent(ctx context.Context, event map[string]any) (map[string]any, error) {
	if i.caps.ProcessEvent == nil {
		return nil, fmt.Errorf("%w: plugin config %d has no %s", ErrHookNotImplemented, i.ID, HookProcessEvent)
	}
	return i.caps.ProcessEvent(ctx, event)
}

// scheduledHook возвращает хук cadence или nil.
func (i *Instance) scheduledHook(c Cadence) ScheduledHook {
	switch c {
	case CadenceEveryMinute:
		return i.caps.RunEveryMinute
	case CadenceEveryHour:
		return i.caps.RunEveryHour
	case CadenceEveryDay:
		return i.caps.RunEveryDay
	default:
		return nil
	}
}

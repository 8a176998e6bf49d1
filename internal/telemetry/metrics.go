package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики plugin-worker. Регистрируются в default registry,
// отдаются бинарником на /metrics.
var (
	// TasksTotal — выполненные task-инвокации по имени task и исходу.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugin_worker_tasks_total",
		Help: "Task invocations processed, by task name and outcome",
	}, []string{"task", "outcome"})

	// DependencyRetriesTotal — повторы обращений к зависимостям.
	DependencyRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugin_worker_dependency_retries_total",
		Help: "Retries of transient dependency failures, by dependency name",
	}, []string{"dependency"})

	// DependencyUnavailableTotal — исчерпанные повторы по зависимостям.
	DependencyUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugin_worker_dependency_unavailable_total",
		Help: "Operations that exhausted retries against a dependency",
	}, []string{"dependency"})

	// PluginLoadFailuresTotal — плагины, исключённые из registry при загрузке.
	PluginLoadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plugin_worker_plugin_load_failures_total",
		Help: "Plugins excluded from the registry due to load failures",
	})

	// LoadedPlugins — размер текущего registry.
	LoadedPlugins = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plugin_worker_loaded_plugins",
		Help: "Plugins in the current registry snapshot",
	})

	// EventsTotal — события pipeline по исходу (processed, dropped, failed).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugin_worker_events_total",
		Help: "Events run through the event pipeline, by outcome",
	}, []string{"outcome"})
)

// Package telemetry — structured logging и prometheus-метрики plugin-worker.
//
// Логирование построено на log/slog: SetupLogger() настраивает глобальный
// логгер по переменным окружения LOG_LEVEL и LOG_FORMAT (JSON по умолчанию
// для production). With* хелперы добавляют стандартные ключи
// (task, plugin_config_id, team_id) к логгеру.
//
// Метрики регистрируются через promauto на уровне пакета и отдаются
// бинарником на /metrics (promhttp).
package telemetry

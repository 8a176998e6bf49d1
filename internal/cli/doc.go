// Package cli реализует ops-инструмент командной строки plugin-worker.
//
// # Обзор
//
// CLI — клиентская утилита управления воркерами. Воркеры не держат
// управляющего HTTP API: все операции (reload, teardown, flush,
// инвалидация кэша) — это обычные task envelopes в очереди задач.
// CLI публикует envelope в RabbitMQ и ждёт подтверждения брокером;
// выполнит его первый свободный воркер.
//
// # Ключевые компоненты
//
// ## Client
//
// Обёртка над соединением с RabbitMQ и producer'ом в confirm-режиме.
// InvokeTask публикует envelope и делает Flush: возврат без ошибки
// означает "брокер принял сообщение", не "task выполнен".
//
//	client, err := cli.NewClient("amqp://localhost:5672")
//	err = client.InvokeTask(ctx, "reloadPlugins", nil)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - plugins: reload, teardown
//   - schedule: reload
//   - cache: invalidate
//   - task: list, run (произвольный task с --arg KEY=VALUE)
//   - flush
//
// Каждая группа создаётся через фабричную функцию (NewPluginsCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli

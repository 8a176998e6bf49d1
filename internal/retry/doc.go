// Package retry оборачивает обращения к внешним зависимостям (Postgres,
// RabbitMQ, Redis) политикой повторов для транзиентных инфраструктурных
// ошибок.
//
// # Классификация
//
// Пакет различает два класса ошибок:
//   - Транзиентные — вызваны внешней инфраструктурой (connection refused,
//     connection reset, таймаут, исчерпание пула). Повторяются с
//     экспоненциальной задержкой; после исчерпания попыток поднимаются как
//     DependencyUnavailableError с именем зависимости и исходной причиной.
//   - Постоянные — логические ошибки приложения/плагина. Возвращаются
//     немедленно, без повторов и без обёртки: повтор бессмысленен и
//     маскировал бы реальный баг.
//
// Классификация выполняется по форме ошибки, а не по месту вызова, поэтому
// один и тот же wrapper подходит для любой зависимости.
//
// # Использование
//
//	rows, err := retry.IfRetriable(ctx, "Postgres", policy, clk,
//	    func(ctx context.Context) ([]Row, error) {
//	        return store.ListEnabled(ctx)
//	    })
//
// Задержки между попытками запрашиваются у clock.Clock, так что тесты
// проматывают время без реальных ожиданий.
package retry

// Package worker — точка входа выполнения задач.
//
// Dispatcher держит таблицу "имя task → обработчик", неизменную после
// старта процесса: неизвестное имя — постоянная ошибка без повторов.
// Worker поднимает фиксированный пул consumer'ов очереди задач; каждый
// envelope проходит через Dispatcher с таймаутом на инвокацию.
//
// Обработчики сами не реализуют доменную логику: они связывают task с
// manager'ом плагинов, scheduler'ом, producer'ом и кэшем, оборачивая
// обращения к инфраструктуре в retry-политику.
package worker

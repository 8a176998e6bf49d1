// Package scheduler ведёт таблицу расписания периодических плагинов.
//
// Таблица — иммутабельный снимок "cadence bucket → plugin config ids",
// перестраиваемый целиком задачей reloadSchedule по одному снимку registry
// (никогда частично). Идентификатор находится в корзине тогда и только
// тогда, когда его текущий экземпляр экспортирует соответствующий хук.
//
// Сам таймер пакет не реализует: cadence-задачи (runEveryMinute/Hour/Day)
// приходят от внешнего cron-подобного триггера через dispatch table.
// Для деплоев без внешнего триггера есть опциональный Ticker на
// robfig/cron.
package scheduler

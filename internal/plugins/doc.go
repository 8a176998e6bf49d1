// Package plugins управляет жизненным циклом загруженных плагинов.
//
// # Обзор
//
// Registry — иммутабельный снимок загруженных плагинов процесса. Читатели
// берут текущий снимок без блокировок; setup/reload строят новый снимок
// целиком и публикуют его атомарной заменой указателя (copy-on-write), так
// что наблюдается либо полностью старое, либо полностью новое состояние,
// никогда частичное. Писатели (setup/reload/teardown) сериализуются
// мьютексом менеджера: один reload за раз.
//
// # Жизненный цикл плагина
//
//	Unloaded → Loading → Ready → TearingDown → Unloaded
//
// Setup загружает включённые конфигурации из Postgres (через retry wrapper:
// транзиентный сбой хранилища повторяется, после исчерпания —
// DependencyUnavailableError "Postgres"). Ошибка загрузки одного плагина
// не прерывает setup: плагин исключается из снимка и репортится как
// нефатальная LoadError.
//
// Reload — это jitter-пауза (случайная, ограниченная конфигурацией;
// защита от stampede при одновременном reload многих воркеров) плюс setup;
// retry wrapper обёрнут вокруг всего reload, не только вокруг паузы.
//
// Teardown — best-effort: teardown-хуки всех плагинов вызываются
// независимо, ошибки собираются в multierror и не блокируют остальных.
// Повторный teardown — no-op.
//
// # Хуки
//
// Плагин объявляет свой набор хуков один раз при загрузке (Capabilities):
// processEvent, runEveryMinute/Hour/Day, именованные jobs, teardown.
// RunHook ищет плагин в текущем снимке: отсутствие плагина
// (ErrPluginNotLoaded) и отсутствие хука (ErrHookNotImplemented) —
// терминальные ошибки, без повторов.
package plugins

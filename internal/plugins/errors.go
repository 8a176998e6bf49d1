package plugins

import (
	"errors"
	"fmt"
)

// Ошибки жизненного цикла плагинов.
var (
	// ErrPluginNotLoaded — конфигурация отсутствует в текущем registry
	// (отключена или не загрузилась). Терминальная, без повторов.
	ErrPluginNotLoaded = errors.New("plugin is not loaded")

	// ErrHookNotImplemented — плагин не экспортирует запрошенный хук.
	// Терминальная, без повторов.
	ErrHookNotImplemented = errors.New("hook is not implemented by plugin")

	// ErrFactoryNotRegistered — для имени плагина нет фабрики.
	ErrFactoryNotRegistered = errors.New("no factory registered for plugin")
)

// LoadError — нефатальная ошибка загрузки одного плагина: плагин
// исключается из registry, setup продолжается.
type LoadError struct {
	ID    PluginConfigID
	Name  string
	Cause error
}

// Error возвращает описание ошибки.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %d (%s): %v", e.ID, e.Name, e.Cause)
}

// Unwrap возвращает исходную ошибку.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

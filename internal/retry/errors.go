package retry

import (
	"errors"
	"fmt"
)

// DependencyUnavailableError — типизированная ошибка недоступности внешней
// зависимости.
//
// Конструируется только на границе вызова зависимости (БД, брокер, кэш)
// после исчерпания повторов — никогда для ошибок самой логики плагинов.
// Имя зависимости позволяет операторам настроить алёрты на конкретную
// внешнюю систему.
type DependencyUnavailableError struct {
	// Dependency — логическое имя зависимости: "Postgres", "RabbitMQ", "Redis".
	Dependency string

	// Message — человекочитаемое описание.
	Message string

	// Cause — последняя исходная ошибка.
	Cause error
}

// Error возвращает описание ошибки.
func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Dependency, e.Message)
}

// Unwrap возвращает исходную ошибку.
func (e *DependencyUnavailableError) Unwrap() error {
	return e.Cause
}

// IsDependencyUnavailable проверяет, является ли ошибка (или её причина)
// DependencyUnavailableError.
func IsDependencyUnavailable(err error) bool {
	var de *DependencyUnavailableError
	return errors.As(err, &de)
}

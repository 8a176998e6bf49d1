package worker

import "errors"

// Ошибки dispatch.
var (
	// ErrUnknownTask — имя task отсутствует в таблице. Ошибка постоянная:
	// таблица фиксируется при старте, повтор даст тот же результат.
	ErrUnknownTask = errors.New("unknown task")

	// ErrBadArgs — аргументы envelope не проходят валидацию обработчика.
	ErrBadArgs = errors.New("invalid task arguments")
)

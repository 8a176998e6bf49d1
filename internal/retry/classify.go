package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Фрагменты сообщений, характерные для транзиентных инфраструктурных сбоев.
// Дополняет типизированные проверки для ошибок, приходящих в виде текста
// (драйверы заворачивают сетевые сбои по-разному).
var transientMessages = []string{
	"connection refused",
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"server closed the connection unexpectedly",
	"the database system is starting up",
	"the database system is shutting down",
	"too many connections",
	"connection pool exhausted",
	"unexpected EOF",
}

// Коды SQLSTATE классов "connection exception" (08) и
// "insufficient resources" (53) — транзиентные по определению.
func transientPgCode(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53")
}

// Retriable определяет по форме ошибки, является ли она транзиентной
// инфраструктурной и имеет ли смысл повтор.
func Retriable(err error) bool {
	if err == nil {
		return false
	}

	// Уже классифицирована на нижнем уровне.
	if IsDependencyUnavailable(err) {
		return true
	}

	// Таймауты: и сетевые, и context deadline.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Любая ошибка на уровне сетевой операции (dial, read, write).
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Postgres: обрыв до отправки запроса либо SQLSTATE класса 08/53.
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientPgCode(pgErr.Code) {
		return true
	}

	// Исчерпание пула ресурсов.
	if errors.Is(err, puddle.ErrClosedPool) {
		return true
	}

	// RabbitMQ: закрытые каналы/соединения и мягкие ошибки брокера.
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Recover {
		return true
	}

	msg := err.Error()
	for _, fragment := range transientMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

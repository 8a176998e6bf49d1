package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeJobs — task envelopes для воркеров.
	ExchangeJobs Exchange = "posthog.jobs"

	// ExchangeEvents — обработанные pipeline события.
	ExchangeEvents Exchange = "posthog.events"

	// ExchangeDLQ — сообщения, обработка которых невозможна.
	ExchangeDLQ Exchange = "posthog.dlq"
)

// Queues — имена очередей.
const (
	QueueJobs            Queue = "jobs.default"
	QueueEventsProcessed Queue = "events.processed"
	QueueDLQJobs         Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyJobs      RoutingKey = "default"
	RoutingKeyProcessed RoutingKey = "processed"
	RoutingKeyDLQJobs   RoutingKey = "jobs"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Идемпотентно: повторный вызов на существующей топологии безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, "direct"},
		{ExchangeEvents, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // args
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// declareQueues создаёт очереди. У jobs настроен DLQ для
// сообщений, отклонённых без requeue.
func declareQueues(ch *amqp.Channel) error {
	jobsArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueJobs, jobsArgs},
		{QueueEventsProcessed, nil},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // auto-delete
			false,          // exclusive
			false,          // no-wait
			q.args,         // args
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue    Queue
		key      RoutingKey
		exchange Exchange
	}{
		{QueueJobs, RoutingKeyJobs, ExchangeJobs},
		{QueueEventsProcessed, RoutingKeyProcessed, ExchangeEvents},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),    // queue
			string(b.key),      // routing key
			string(b.exchange), // exchange
			false,              // no-wait
			nil,                // args
		)
		if err != nil {
			return err
		}
	}
	return nil
}

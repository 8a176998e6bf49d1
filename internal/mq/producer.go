package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTask           MessageType = "task"
	MessageTypeProcessedEvent MessageType = "event.processed"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskEnvelope — payload задачи: имя task и её аргументы.
// Единица работы, которую внешний планировщик/вызывающий ставит воркеру.
type TaskEnvelope struct {
	Task string         `json:"task"`
	Args map[string]any `json:"args,omitempty"`
}

// Producer публикует сообщения в RabbitMQ в confirm-режиме.
//
// Каждая публикация оставляет deferred confirmation; Flush ждёт
// подтверждения брокером всех сообщений, отправленных до вызова.
type Producer struct {
	conn   *Connection
	logger *slog.Logger

	mu      sync.Mutex
	pending []*amqp.DeferredConfirmation
}

// NewProducer создаёт Producer и переводит канал в confirm-режим.
// Confirm-режим восстанавливается после каждого reconnect.
func NewProducer(conn *Connection, logger *slog.Logger) (*Producer, error) {
	p := &Producer{
		conn:   conn,
		logger: logger,
	}

	if err := p.enableConfirms(); err != nil {
		return nil, err
	}

	go p.watchReconnect()

	return p, nil
}

// enableConfirms включает publisher confirms на текущем канале.
func (p *Producer) enableConfirms() error {
	ch := p.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	return nil
}

// watchReconnect восстанавливает confirm-режим после переподключения.
func (p *Producer) watchReconnect() {
	for range p.conn.ReconnectNotify() {
		if err := p.enableConfirms(); err != nil {
			p.logger.Warn("failed to re-enable publisher confirms", "error", err)
		}
	}
}

// Publish публикует сообщение в указанный exchange с routing key
// и запоминает его deferred confirmation для Flush.
func (p *Producer) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirmation, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.mu.Lock()
		p.pending = append(p.pending, confirmation)
		p.mu.Unlock()

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTask публикует task envelope в очередь воркеров.
// Используется внешними вызывающими (ops CLI, внутренний ticker).
func (p *Producer) PublishTask(ctx context.Context, task string, args map[string]any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTask,
		Payload:   TaskEnvelope{Task: task, Args: args},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeyJobs, msg)
}

// PublishProcessedEvent публикует событие, прошедшее pipeline.
func (p *Producer) PublishProcessedEvent(ctx context.Context, event map[string]any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeProcessedEvent,
		Payload:   event,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeEvents, RoutingKeyProcessed, msg)
}

// Flush блокирует до подтверждения брокером всех сообщений, отправленных
// до вызова. Публикации, сделанные после вызова, не входят в этот проход —
// Flush безопасно звать параллельно с продолжающейся публикацией.
func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	snapshot := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, confirmation := range snapshot {
		select {
		case <-confirmation.Done():
			if !confirmation.Acked() {
				return fmt.Errorf("message %d nacked by broker", confirmation.DeliveryTag)
			}
		case <-ctx.Done():
			// Неподтверждённый остаток возвращаем в pending, чтобы
			// следующий Flush дождался его.
			p.requeuePending(snapshot, confirmation)
			return ctx.Err()
		}
	}

	p.logger.Debug("producer flushed", "confirmed", len(snapshot))
	return nil
}

// requeuePending возвращает неподтверждённый хвост snapshot обратно в pending.
func (p *Producer) requeuePending(snapshot []*amqp.DeferredConfirmation, from *amqp.DeferredConfirmation) {
	idx := 0
	for i, c := range snapshot {
		if c == from {
			idx = i
			break
		}
	}

	p.mu.Lock()
	p.pending = append(snapshot[idx:], p.pending...)
	p.mu.Unlock()
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload может быть уже распарсен как map или быть raw json
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}

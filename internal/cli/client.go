package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/kappa90/posthog/internal/mq"
)

// Таймаут на публикацию и подтверждение одного envelope.
const invokeTimeout = 10 * time.Second

// Client публикует task envelopes в очередь воркеров.
type Client struct {
	conn     *mq.Connection
	producer *mq.Producer
}

// NewClient подключается к RabbitMQ и готовит producer в confirm-режиме.
// Топология объявляется идемпотентно: CLI можно запускать до воркеров.
func NewClient(url string) (*Client, error) {
	// Логи соединения в CLI не нужны: ошибки возвращаются вызывающему.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
	defer cancel()

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	producer, err := mq.NewProducer(conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Client{conn: conn, producer: producer}, nil
}

// InvokeTask публикует envelope и ждёт подтверждения брокером.
// Возврат без ошибки означает "сообщение принято", не "task выполнен".
func (c *Client) InvokeTask(ctx context.Context, task string, args map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	if err := c.producer.PublishTask(ctx, task, args); err != nil {
		return err
	}
	return c.producer.Flush(ctx)
}

// Close закрывает соединение с брокером.
func (c *Client) Close() error {
	return c.conn.Close()
}

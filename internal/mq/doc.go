// Package mq — граница RabbitMQ: входящая очередь task-envelopes и
// исходящий поток обработанных событий.
//
// # Компоненты
//
//   - Connection — обёртка над AMQP-соединением с автоматическим reconnect.
//   - Consumer — потребление envelopes с prefetch и ручным ack/nack.
//     Транзиентные ошибки обработки возвращают сообщение в очередь
//     (redelivery — ответственность брокера), постоянные отправляют в DLQ.
//   - Producer — публикация в confirm-режиме. Flush(ctx) блокирует до
//     подтверждения брокером всех сообщений, отправленных до вызова:
//     используется при graceful shutdown и перед teardown плагинов, чтобы
//     не потерять буферизованный вывод.
//
// Гарантии доставки — at-least-once: дубликаты envelopes возможны и
// допускаются контрактом задач.
package mq

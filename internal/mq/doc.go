// Package mq предоставляет транспортный слой поверх RabbitMQ (AMQP 0-9-1).
//
// Структура:
//   - connection.go — Session: одно физическое соединение с брокером
//     (dial, отслеживание разрыва, идемпотентное закрытие)
//   - sender.go     — исходящий link с ограниченной очередью и сигналом QueueFull
//   - receiver.go   — входящий link, доставляет сообщения строго по порядку
//   - message.go    — Message и конвертация в/из amqp.Publishing / amqp.Delivery
//   - topology.go   — адреса и объявление очередей
//
// Адреса:
//   - upstate/requests      — входящие запросы к воркерам
//   - upstate/worker-status — периодические статусы воркеров
//
// Каждый link работает на собственном AMQP-канале, поэтому трафик
// ответов и статусов не блокирует друг друга.
package mq

package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Адреса по умолчанию.
const (
	AddressRequests     = "upstate/requests"
	AddressWorkerStatus = "upstate/worker-status"
)

// defaultExchange — default exchange RabbitMQ, маршрутизирует по имени очереди.
// Адрес link'а в RabbitMQ — это имя очереди, публикация идёт
// в default exchange с routing key = адрес.
const defaultExchange = ""

// declareQueue объявляет очередь для адреса.
//
// Очереди не durable: персистентность сообщений не поддерживается.
func declareQueue(ch *amqp.Channel, address string) error {
	_, err := ch.QueueDeclare(
		address, // name
		false,   // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", address, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Upstate RabbitMQ Topology:

    (default exchange)
    ├── upstate/requests       Consumer: worker, reply → ReplyTo
    └── upstate/worker-status  Producer: worker, every 10s
  `
}

package mq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ContentTypeText — тип содержимого для строковых тел сообщений.
const ContentTypeText = "text/plain"

// Message — сообщение, передаваемое через link.
type Message struct {
	// MessageID — идентификатор сообщения (для запросов — источник correlation id ответа).
	MessageID string

	// CorrelationID — идентификатор запроса, на который отвечает сообщение.
	CorrelationID string

	// ReplyTo — адрес, на который нужно отправить ответ.
	ReplyTo string

	// Address — адрес назначения. Для link'ов с фиксированным адресом игнорируется.
	Address string

	// AppID — идентификатор отправителя.
	AppID string

	ContentType string
	Body        []byte

	// Properties — application properties (AMQP headers).
	Properties map[string]any

	Timestamp time.Time
}

// Publishing конвертирует сообщение в amqp.Publishing.
func (m Message) Publishing() amqp.Publishing {
	var headers amqp.Table
	if len(m.Properties) > 0 {
		headers = make(amqp.Table, len(m.Properties))
		for k, v := range m.Properties {
			headers[k] = v
		}
	}

	return amqp.Publishing{
		Headers:       headers,
		ContentType:   m.ContentType,
		DeliveryMode:  amqp.Transient, // сообщения не переживают рестарт брокера
		CorrelationId: m.CorrelationID,
		ReplyTo:       m.ReplyTo,
		MessageId:     m.MessageID,
		Timestamp:     m.Timestamp,
		AppId:         m.AppID,
		Body:          m.Body,
	}
}

// FromDelivery конвертирует amqp.Delivery в Message.
//
// Address заполняется routing key, с которым сообщение было опубликовано.
func FromDelivery(d amqp.Delivery) Message {
	var props map[string]any
	if len(d.Headers) > 0 {
		props = make(map[string]any, len(d.Headers))
		for k, v := range d.Headers {
			props[k] = v
		}
	}

	return Message{
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		Address:       d.RoutingKey,
		AppID:         d.AppId,
		ContentType:   d.ContentType,
		Body:          d.Body,
		Properties:    props,
		Timestamp:     d.Timestamp,
	}
}

package mq

import "errors"

// Ошибки транспортного слоя.
var (
	// ErrSessionClosed — сессия закрыта или соединение разорвано.
	ErrSessionClosed = errors.New("session closed")

	// ErrLinkClosed — link закрыт, отправка невозможна.
	ErrLinkClosed = errors.New("link closed")

	// ErrQueueFull — исходящая очередь link'а заполнена.
	ErrQueueFull = errors.New("send queue full")

	// ErrCloseTimeout — link не остановился за отведённое время.
	ErrCloseTimeout = errors.New("link close timed out")

	// ErrNoAddress — у сообщения для анонимного link'а нет адреса.
	ErrNoAddress = errors.New("message has no address")
)

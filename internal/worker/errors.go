package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnsupportedBody — тело запроса не является строкой.
	ErrUnsupportedBody = errors.New("unsupported request body")

	// ErrNoReplyTo — у запроса нет адреса для ответа.
	ErrNoReplyTo = errors.New("request has no reply-to address")

	// ErrUnknownProcessor — нет обработчика с таким именем.
	ErrUnknownProcessor = errors.New("unknown processor")

	// ErrNoDialer — Supervisor создан без функции подключения.
	ErrNoDialer = errors.New("no dialer configured")
)

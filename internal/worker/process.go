package worker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shaiso/upstate/internal/mq"
)

// ProcessFunc — обработка тела запроса.
//
// Ошибка означает, что ответа на запрос не будет.
type ProcessFunc func(ctx context.Context, body string) (string, error)

// Uppercase — обработчик по умолчанию: переводит тело в верхний регистр.
func Uppercase(_ context.Context, body string) (string, error) {
	return strings.ToUpper(body), nil
}

// Echo возвращает тело без изменений.
func Echo(_ context.Context, body string) (string, error) {
	return body, nil
}

// requestBody извлекает строковое тело запроса.
//
// Допустимы пустой content type и text/*; тело должно быть валидным UTF-8.
func requestBody(msg mq.Message) (string, error) {
	if msg.ContentType != "" && !strings.HasPrefix(msg.ContentType, "text/") {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedBody, msg.ContentType)
	}
	if !utf8.Valid(msg.Body) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", ErrUnsupportedBody)
	}
	return string(msg.Body), nil
}

// Registry — реестр обработчиков по имени.
type Registry struct {
	processors map[string]ProcessFunc
}

// Имена встроенных обработчиков.
const (
	ProcessorUppercase = "uppercase"
	ProcessorEcho      = "echo"
)

// NewRegistry создаёт реестр со встроенными обработчиками.
//
// Регистрирует: uppercase, echo.
func NewRegistry() *Registry {
	r := &Registry{processors: make(map[string]ProcessFunc)}
	r.Register(ProcessorUppercase, Uppercase)
	r.Register(ProcessorEcho, Echo)
	return r
}

// Register добавляет обработчик.
func (r *Registry) Register(name string, fn ProcessFunc) {
	r.processors[name] = fn
}

// Get возвращает обработчик по имени.
func (r *Registry) Get(name string) (ProcessFunc, error) {
	fn, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return fn, nil
}

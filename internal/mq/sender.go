package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher — часть amqp.Channel, нужная sender'у.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type senderConfig struct {
	address      string
	queueSize    int
	blocked      func() bool
	closeTimeout time.Duration
	logger       *slog.Logger
}

// Sender — исходящий link.
//
// Сообщения попадают в ограниченную очередь и публикуются отдельной
// горутиной в порядке постановки. Подтверждений от брокера нет:
// ошибка публикации логируется, сообщение теряется.
type Sender struct {
	address string
	ch      publisher
	queue   chan Message
	blocked func() bool
	logger  *slog.Logger

	closeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// newSender создаёт sender и запускает горутину публикации.
func newSender(ch publisher, cfg senderConfig) *Sender {
	if cfg.queueSize <= 0 {
		cfg.queueSize = defaultSendQueueSize
	}
	if cfg.blocked == nil {
		cfg.blocked = func() bool { return false }
	}
	if cfg.closeTimeout <= 0 {
		cfg.closeTimeout = defaultCloseTimeout
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Sender{
		address: cfg.address,
		ch:      ch,
		queue:   make(chan Message, cfg.queueSize),
		blocked: cfg.blocked,
		logger:  cfg.logger,

		closeTimeout: cfg.closeTimeout,

		ctx:    ctx,
		cancel: cancel,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	return s
}

// Address возвращает адрес link'а ("" для анонимного).
func (s *Sender) Address() string {
	return s.address
}

// QueueFull возвращает true, если исходящая очередь заполнена
// или брокер заблокировал соединение.
func (s *Sender) QueueFull() bool {
	return len(s.queue) >= cap(s.queue) || s.blocked()
}

// Send ставит сообщение в очередь, ожидая свободного места.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if err := s.validate(msg); err != nil {
		return err
	}

	select {
	case <-s.ctx.Done():
		return ErrLinkClosed
	default:
	}

	select {
	case s.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrLinkClosed
	}
}

// TrySend ставит сообщение в очередь без ожидания.
// Если очередь заполнена, возвращает ErrQueueFull.
func (s *Sender) TrySend(msg Message) error {
	if err := s.validate(msg); err != nil {
		return err
	}

	select {
	case <-s.ctx.Done():
		return ErrLinkClosed
	default:
	}

	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// validate проверяет, что у сообщения есть куда быть отправленным.
func (s *Sender) validate(msg Message) error {
	if s.address == "" && msg.Address == "" {
		return ErrNoAddress
	}
	return nil
}

// run публикует сообщения из очереди, пока link не закрыт.
func (s *Sender) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.publish(msg); err != nil {
				s.logger.Warn("publish failed",
					"address", s.routingKey(msg),
					"message_id", msg.MessageID,
					"error", err,
				)
			}
		}
	}
}

// publish публикует одно сообщение в default exchange.
func (s *Sender) publish(msg Message) error {
	key := s.routingKey(msg)

	err := s.ch.PublishWithContext(
		s.ctx,
		defaultExchange, // exchange
		key,             // routing key
		false,           // mandatory
		false,           // immediate
		msg.Publishing(),
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}

	s.logger.Debug("published message",
		"address", key,
		"message_id", msg.MessageID,
		"correlation_id", msg.CorrelationID,
	)
	return nil
}

// routingKey возвращает адрес назначения сообщения.
func (s *Sender) routingKey(msg Message) string {
	if s.address != "" {
		return s.address
	}
	return msg.Address
}

// Close останавливает публикацию и закрывает канал.
// Сообщения, оставшиеся в очереди, отбрасываются.
//
// Если публикация не завершилась за closeTimeout (запись в заблокированное
// соединение), возвращает ErrCloseTimeout; канал тогда закрывается вместе
// с соединением.
func (s *Sender) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		stopped := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(stopped)
		}()

		timer := time.NewTimer(s.closeTimeout)
		defer timer.Stop()

		select {
		case <-stopped:
		case <-timer.C:
			s.logger.Warn("publish still in flight, leaving channel to the connection",
				"address", s.address,
			)
			err = ErrCloseTimeout
			return
		}

		if cerr := s.ch.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = fmt.Errorf("close sender channel: %w", cerr)
		}
	})
	return err
}

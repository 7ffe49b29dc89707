package worker

import (
	"context"
	"log/slog"

	"github.com/shaiso/upstate/internal/mq"
)

// Sender — исходящий link.
type Sender interface {
	// Send ставит сообщение в очередь, ожидая свободного места.
	Send(ctx context.Context, msg mq.Message) error

	// TrySend ставит сообщение в очередь без ожидания.
	TrySend(msg mq.Message) error

	// QueueFull сообщает о backpressure на link'е.
	QueueFull() bool

	Close() error
}

// Receiver — входящий link.
type Receiver interface {
	Deliveries() <-chan mq.Message
	Close() error
}

// Session — то, что компоненты видят у сессии: liveness и создание links.
// Владеет сессией только Supervisor.
type Session interface {
	IsDisconnected() bool
	Done() <-chan struct{}
	OpenSender(address string) (Sender, error)
	OpenReceiver(address string) (Receiver, error)
	Close() error
}

// Dialer открывает новую сессию с брокером.
type Dialer func(ctx context.Context, identity Identity) (Session, error)

// AMQPDialer возвращает Dialer поверх mq.Dial.
// Identity воркера становится именем соединения.
func AMQPDialer(cfg mq.Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context, identity Identity) (Session, error) {
		c := cfg
		c.Identity = identity.String()

		sess, err := mq.Dial(ctx, c, logger)
		if err != nil {
			return nil, err
		}
		return amqpSession{sess}, nil
	}
}

// amqpSession адаптирует *mq.Session к интерфейсу Session.
type amqpSession struct {
	*mq.Session
}

func (s amqpSession) OpenSender(address string) (Sender, error) {
	sender, err := s.Session.OpenSender(address)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (s amqpSession) OpenReceiver(address string) (Receiver, error) {
	receiver, err := s.Session.OpenReceiver(address)
	if err != nil {
		return nil, err
	}
	return receiver, nil
}

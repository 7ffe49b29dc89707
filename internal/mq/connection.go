package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Значения по умолчанию.
const (
	defaultDialTimeout   = 30 * time.Second
	defaultHeartbeat     = 10 * time.Second
	defaultSendQueueSize = 64
	defaultCloseTimeout  = 5 * time.Second
)

// SessionState — состояние сессии.
//
// Жизненный цикл:
//
//	CONNECTING → OPEN → CLOSED
//	           ↘      ↘ FAILED
type SessionState string

const (
	// StateConnecting — идёт установка соединения.
	StateConnecting SessionState = "CONNECTING"

	// StateOpen — соединение установлено.
	StateOpen SessionState = "OPEN"

	// StateClosed — соединение закрыто локально.
	StateClosed SessionState = "CLOSED"

	// StateFailed — соединение не установлено или разорвано брокером.
	StateFailed SessionState = "FAILED"
)

// IsTerminal возвращает true, если сессия больше не может передавать сообщения.
func (s SessionState) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// Config — параметры подключения к брокеру.
type Config struct {
	// URL — AMQP URL брокера (amqp://host:port/vhost).
	URL string

	// Identity — имя соединения, видимое брокеру (connection_name).
	Identity string

	// DialTimeout — таймаут TCP-подключения и AMQP handshake (default: 30s).
	DialTimeout time.Duration

	// Heartbeat — интервал AMQP heartbeat (default: 10s).
	Heartbeat time.Duration

	// SendQueueSize — ёмкость исходящей очереди каждого sender'а (default: 64).
	SendQueueSize int
}

// BrokerURL собирает AMQP URL из хоста, порта и vhost.
//
// Учётные данные не добавляются: используются значения по умолчанию клиента.
func BrokerURL(host string, port int, vhost string) string {
	u := url.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + vhost,
	}
	return u.String()
}

// connection — часть amqp.Connection, нужная сессии.
type connection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	CloseDeadline(deadline time.Time) error
}

// Session — одно физическое соединение с брокером.
//
// Особенности:
// - Разрыв соединения обнаруживается через NotifyClose
// - Сигнал connection.blocked учитывается sender'ами как backpressure
// - Close идемпотентен и закрывает все открытые links
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	state SessionState
	conn  connection
	links []io.Closer
	err   error

	blocked atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// Dial устанавливает соединение с брокером.
//
// При ошибке возвращает ошибку, сессия не создаётся.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		state:  StateConnecting,
		done:   make(chan struct{}),
	}

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(cfg.Identity)

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat:  cfg.Heartbeat,
		Locale:     "en_US",
		Properties: props,
		Dial:       dialContext(ctx, cfg.DialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	s.conn = conn
	s.state = StateOpen

	go s.watchConnection(
		conn.NotifyClose(make(chan *amqp.Error, 1)),
		conn.NotifyBlocked(make(chan amqp.Blocking, 1)),
	)

	logger.Info("connected to broker", "connection_name", cfg.Identity)

	return s, nil
}

// dialContext возвращает функцию подключения, учитывающую ctx.
// Deadline на handshake снимается клиентом после открытия соединения.
func dialContext(ctx context.Context, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// watchConnection следит за разрывом соединения и сигналами backpressure.
func (s *Session) watchConnection(notifyClose <-chan *amqp.Error, notifyBlocked <-chan amqp.Blocking) {
	for {
		select {
		case b, ok := <-notifyBlocked:
			if !ok {
				notifyBlocked = nil
				continue
			}
			s.blocked.Store(b.Active)
			if b.Active {
				s.logger.Warn("connection blocked by broker", "reason", b.Reason)
			} else {
				s.logger.Info("connection unblocked")
			}

		case amqpErr, ok := <-notifyClose:
			if ok && amqpErr != nil {
				s.logger.Warn("connection lost", "error", amqpErr)
				s.finish(StateFailed, amqpErr)
			} else {
				s.finish(StateClosed, nil)
			}
			return
		}
	}
}

// finish переводит сессию в терминальное состояние и закрывает links.
func (s *Session) finish(state SessionState, cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = state
		s.err = cause
		links := s.links
		s.links = nil
		s.mu.Unlock()

		close(s.done)

		for i := len(links) - 1; i >= 0; i-- {
			if err := links[i].Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				s.logger.Debug("close link", "error", err)
			}
		}
	})
}

// State возвращает текущее состояние сессии.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err возвращает причину разрыва соединения, если она известна.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done закрывается при переходе сессии в терминальное состояние.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsDisconnected проверяет, разорвано ли соединение.
func (s *Session) IsDisconnected() bool {
	if s.State().IsTerminal() {
		return true
	}
	return s.conn.IsClosed()
}

// Blocked возвращает true, пока брокер держит соединение в состоянии connection.blocked.
func (s *Session) Blocked() bool {
	return s.blocked.Load()
}

// Identity возвращает имя соединения.
func (s *Session) Identity() string {
	return s.cfg.Identity
}

// OpenSender открывает исходящий link.
//
// Пустой address — анонимный link: адрес берётся из каждого сообщения.
// Для фиксированного адреса очередь объявляется заранее.
func (s *Session) OpenSender(address string) (*Sender, error) {
	ch, err := s.channel()
	if err != nil {
		return nil, err
	}

	if address != "" {
		if err := declareQueue(ch, address); err != nil {
			ch.Close()
			return nil, err
		}
	}

	sender := newSender(ch, senderConfig{
		address:   address,
		queueSize: s.cfg.SendQueueSize,
		blocked:   s.Blocked,
		logger:    s.logger,
	})

	if err := s.track(sender); err != nil {
		sender.Close()
		return nil, err
	}
	return sender, nil
}

// OpenReceiver открывает входящий link на адрес.
//
// Сообщения подтверждаются брокеру автоматически при доставке
// (at-most-once): повторной доставки после сбоя обработки нет.
func (s *Session) OpenReceiver(address string) (*Receiver, error) {
	ch, err := s.channel()
	if err != nil {
		return nil, err
	}

	if err := declareQueue(ch, address); err != nil {
		ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		address, // queue
		"",      // consumer tag (auto-generated)
		true,    // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", address, err)
	}

	receiver := newReceiver(ch, address, deliveries)

	if err := s.track(receiver); err != nil {
		receiver.Close()
		return nil, err
	}
	return receiver, nil
}

// channel открывает новый AMQP канал для link'а.
func (s *Session) channel() (*amqp.Channel, error) {
	s.mu.RLock()
	state := s.state
	conn := s.conn
	s.mu.RUnlock()

	if state.IsTerminal() {
		return nil, ErrSessionClosed
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// track запоминает link, чтобы закрыть его вместе с сессией.
func (s *Session) track(link io.Closer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return ErrSessionClosed
	}
	s.links = append(s.links, link)
	return nil
}

// Close закрывает соединение и links. Повторные вызовы ничего не делают.
//
// Соединение закрывается первым: публикация, зависшая на записи в
// заблокированный брокером сокет, получает ошибку и не держит links.
func (s *Session) Close() error {
	if s.State().IsTerminal() {
		return nil
	}

	var err error
	if cerr := s.conn.CloseDeadline(time.Now().Add(defaultCloseTimeout)); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
		err = fmt.Errorf("close connection: %w", cerr)
	}

	s.finish(StateClosed, nil)

	if err != nil {
		return err
	}
	s.logger.Info("connection closed")
	return nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/upstate/internal/mq"
	"github.com/shaiso/upstate/internal/telemetry"
)

// RequestChannelConfig — конфигурация RequestChannel.
type RequestChannelConfig struct {
	Identity Identity

	// Address — адрес входящих запросов (default: upstate/requests).
	Address string

	// Process — обработчик тела запроса (default: Uppercase).
	Process ProcessFunc

	Logger *slog.Logger
}

// RequestChannel получает запросы и отправляет ответы на их ReplyTo.
type RequestChannel struct {
	identity Identity
	address  string
	process  ProcessFunc
	receiver Receiver
	sender   Sender
	logger   *slog.Logger

	closeOnce sync.Once
}

// OpenRequestChannel открывает receiver на адрес запросов и анонимный sender для ответов.
func OpenRequestChannel(sess Session, cfg RequestChannelConfig) (*RequestChannel, error) {
	address := cfg.Address
	if address == "" {
		address = mq.AddressRequests
	}

	process := cfg.Process
	if process == nil {
		process = Uppercase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	receiver, err := sess.OpenReceiver(address)
	if err != nil {
		return nil, fmt.Errorf("open receiver %s: %w", address, err)
	}

	sender, err := sess.OpenSender("")
	if err != nil {
		receiver.Close()
		return nil, fmt.Errorf("open reply sender: %w", err)
	}

	return &RequestChannel{
		identity: cfg.Identity,
		address:  address,
		process:  process,
		receiver: receiver,
		sender:   sender,
		logger:   logger,
	}, nil
}

// Run обрабатывает запросы по одному в порядке поступления.
//
// Возвращает ctx.Err() при отмене контекста и nil, когда link закрыт.
func (c *RequestChannel) Run(ctx context.Context) error {
	c.logger.Info("request channel started", "address", c.address)

	deliveries := c.receiver.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req, ok := <-deliveries:
			if !ok {
				c.logger.Info("request link closed", "address", c.address)
				return nil
			}

			if err := c.handle(ctx, req); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("failed processing message",
					"message_id", req.MessageID,
					"error", err,
				)
			}
		}
	}
}

// handle обрабатывает один запрос и отправляет ответ.
func (c *RequestChannel) handle(ctx context.Context, req mq.Message) error {
	telemetry.RequestsReceived.Inc()

	resp, err := c.respond(ctx, req)
	if err != nil {
		telemetry.ProcessingFailures.Inc()
		return err
	}

	if resp.Address == "" {
		return ErrNoReplyTo
	}

	c.logger.Info("sending response",
		"body", string(resp.Body),
		"address", resp.Address,
		"correlation_id", resp.CorrelationID,
	)

	// Ответ не ждёт освобождения link'а: при перегрузке он отбрасывается
	if err := c.sender.TrySend(resp); err != nil {
		if errors.Is(err, mq.ErrQueueFull) {
			telemetry.ResponsesDropped.Inc()
			c.logger.Warn("reply link congested, response dropped",
				"address", resp.Address,
				"correlation_id", resp.CorrelationID,
			)
			return nil
		}
		return fmt.Errorf("send response: %w", err)
	}

	telemetry.ResponsesSent.Inc()
	return nil
}

// respond применяет обработчик к телу запроса и строит ответ.
func (c *RequestChannel) respond(ctx context.Context, req mq.Message) (mq.Message, error) {
	body, err := requestBody(req)
	if err != nil {
		return mq.Message{}, err
	}

	c.logger.Info("received request", "body", body, "message_id", req.MessageID)

	out, err := c.process(ctx, body)
	if err != nil {
		return mq.Message{}, fmt.Errorf("process request: %w", err)
	}

	return NewResponse(c.identity, req, out, time.Now()), nil
}

// Close закрывает links канала. Повторные вызовы ничего не делают.
func (c *RequestChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = errors.Join(c.receiver.Close(), c.sender.Close())
	})
	return err
}

// NewResponse строит ответ на запрос.
//
// Address = ReplyTo запроса, CorrelationID = MessageID запроса.
func NewResponse(identity Identity, req mq.Message, body string, now time.Time) mq.Message {
	return mq.Message{
		MessageID:     uuid.NewString(),
		CorrelationID: req.MessageID,
		Address:       req.ReplyTo,
		AppID:         identity.String(),
		ContentType:   mq.ContentTypeText,
		Body:          []byte(body),
		Properties: map[string]any{
			"worker_id": identity.String(),
		},
		Timestamp: now,
	}
}

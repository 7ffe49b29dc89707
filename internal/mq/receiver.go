package mq

import (
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Receiver — входящий link.
//
// Сообщения отдаются через Deliveries() в порядке доставки брокером.
// Канал Deliveries() закрывается, когда link или соединение закрыты.
type Receiver struct {
	address string
	ch      interface{ Close() error }
	out     chan Message

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// newReceiver запускает горутину, конвертирующую amqp.Delivery в Message.
func newReceiver(ch interface{ Close() error }, address string, deliveries <-chan amqp.Delivery) *Receiver {
	r := &Receiver{
		address: address,
		ch:      ch,
		out:     make(chan Message),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.out)
		r.forward(deliveries)
	}()

	return r
}

// forward пересылает доставки до закрытия link'а.
func (r *Receiver) forward(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-r.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			select {
			case r.out <- FromDelivery(d):
			case <-r.done:
				return
			}
		}
	}
}

// Address возвращает адрес link'а.
func (r *Receiver) Address() string {
	return r.address
}

// Deliveries возвращает канал входящих сообщений.
func (r *Receiver) Deliveries() <-chan Message {
	return r.out
}

// Close закрывает link. Повторные вызовы ничего не делают.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		if cerr := r.ch.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = fmt.Errorf("close receiver channel: %w", cerr)
		}
	})
	return err
}

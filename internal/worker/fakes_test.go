package worker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/upstate/internal/mq"
)

// --- fakeSender ---

type fakeSender struct {
	mu     sync.Mutex
	sent   []mq.Message
	full   bool
	closed bool
}

// Send при заполненной очереди ждёт отмены ctx, как mq.Sender.
func (s *fakeSender) Send(ctx context.Context, msg mq.Message) error {
	s.mu.Lock()
	if s.full {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer s.mu.Unlock()
	if s.closed {
		return mq.ErrLinkClosed
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) TrySend(msg mq.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return mq.ErrLinkClosed
	}
	if s.full {
		return mq.ErrQueueFull
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) QueueFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSender) setFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

func (s *fakeSender) messages() []mq.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mq.Message(nil), s.sent...)
}

func (s *fakeSender) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// --- fakeReceiver ---

type fakeReceiver struct {
	ch        chan mq.Message
	closeOnce sync.Once
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{ch: make(chan mq.Message, 16)}
}

func (r *fakeReceiver) Deliveries() <-chan mq.Message {
	return r.ch
}

func (r *fakeReceiver) Close() error {
	r.closeOnce.Do(func() { close(r.ch) })
	return nil
}

// --- fakeSession ---

type fakeSession struct {
	mu           sync.Mutex
	disconnected bool
	closed       bool
	senders      map[string]*fakeSender
	receiver     *fakeReceiver
	openErr      error

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		senders:  make(map[string]*fakeSender),
		receiver: newFakeReceiver(),
		done:     make(chan struct{}),
	}
}

func (s *fakeSession) IsDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *fakeSession) Done() <-chan struct{} {
	return s.done
}

func (s *fakeSession) OpenSender(address string) (Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	sender := &fakeSender{}
	s.senders[address] = sender
	return sender, nil
}

func (s *fakeSession) OpenReceiver(address string) (Receiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.receiver, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.disconnected = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// disconnect имитирует разрыв соединения брокером.
func (s *fakeSession) disconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *fakeSession) sender(address string) *fakeSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.senders[address]
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// --- fakeDialer ---

// fakeDialer отдаёт заранее подготовленные сессии или ошибки.
type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	fail     bool
	sessions []*fakeSession
}

var errConnectionRefused = errors.New("connection refused")

func (d *fakeDialer) Dial(_ context.Context, _ Identity) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.fail {
		return nil, errConnectionRefused
	}
	sess := newFakeSession()
	d.sessions = append(d.sessions, sess)
	return sess, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sessions) {
		return nil
	}
	return d.sessions[i]
}

// eventually ждёт выполнения условия.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// syncBuffer — буфер для логов, пишущихся из нескольких горутин.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), substr)
}

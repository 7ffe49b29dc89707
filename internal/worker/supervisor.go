package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/upstate/internal/mq"
	"github.com/shaiso/upstate/internal/telemetry"
)

// Default configuration values.
const (
	defaultReconnectInterval = 60 * time.Second
)

// SupervisorConfig — конфигурация Supervisor.
type SupervisorConfig struct {
	Identity Identity

	// Dial открывает сессию с брокером.
	Dial Dialer

	// ReconnectInterval — пауза между итерациями (default: 60s).
	ReconnectInterval time.Duration

	// Адреса (default: upstate/requests, upstate/worker-status).
	RequestsAddress string
	StatusAddress   string

	// StatusInterval — период публикации статуса (default: 10s).
	StatusInterval time.Duration

	// Process — обработчик запросов (default: Uppercase).
	Process ProcessFunc

	// Count — источник поля count статуса (default: константа 123).
	Count CountFunc

	Logger *slog.Logger
}

// Supervisor — управляющий цикл воркера.
//
// Владеет не более чем одной сессией одновременно. Каждая сессия вместе
// с её RequestChannel и StatusPublisher образует поколение; старое
// поколение закрывается до открытия нового.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger

	mu      sync.Mutex
	current *generation
}

// generation — сессия и подключённые к ней компоненты.
type generation struct {
	session  Session
	requests *RequestChannel
	status   *StatusPublisher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSupervisor создаёт Supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.Identity == "" {
		cfg.Identity = NewIdentity(DefaultIdentityPrefix)
	}
	if cfg.RequestsAddress == "" {
		cfg.RequestsAddress = mq.AddressRequests
	}
	if cfg.StatusAddress == "" {
		cfg.StatusAddress = mq.AddressWorkerStatus
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		cfg:    cfg,
		logger: telemetry.WithWorkerID(logger, cfg.Identity.String()),
	}
}

// Identity возвращает идентификатор воркера.
func (s *Supervisor) Identity() Identity {
	return s.cfg.Identity
}

// Run крутит цикл подключения, пока ctx не отменён.
//
// Ошибка подключения не фатальна: она логируется, и через
// ReconnectInterval делается новая попытка. При отмене ctx текущее
// поколение закрывается, возвращается ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.Dial == nil {
		return ErrNoDialer
	}

	s.logger.Info("starting worker", "reconnect_interval", s.cfg.ReconnectInterval)
	defer s.teardown()

	for {
		s.iterate(ctx)

		timer := time.NewTimer(s.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("stopping worker")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Connected возвращает true, если у Supervisor есть живая сессия.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.session.IsDisconnected()
}

// iterate выполняет одну итерацию цикла.
func (s *Supervisor) iterate(ctx context.Context) {
	if s.Connected() {
		s.logger.Debug("session is alive, skipping connect")
		return
	}

	// Старое поколение закрываем до открытия нового
	s.teardown()

	if ctx.Err() != nil {
		return
	}

	s.logger.Info("connecting to broker")

	sess, err := s.cfg.Dial(ctx, s.cfg.Identity)
	if err != nil {
		telemetry.ConnectAttempts.WithLabelValues(telemetry.ResultFailure).Inc()
		s.logger.Error("connect failed", "error", err)
		return
	}
	telemetry.ConnectAttempts.WithLabelValues(telemetry.ResultSuccess).Inc()

	gen, err := s.wire(ctx, sess)
	if err != nil {
		s.logger.Error("failed to wire session", "error", err)
		if cerr := sess.Close(); cerr != nil {
			s.logger.Warn("failed to close session", "error", cerr)
		}
		return
	}

	s.mu.Lock()
	s.current = gen
	s.mu.Unlock()

	telemetry.SessionUp.Set(1)
	s.logger.Info("session established")
}

// wire подключает RequestChannel и StatusPublisher к сессии и запускает их.
func (s *Supervisor) wire(ctx context.Context, sess Session) (*generation, error) {
	requests, err := OpenRequestChannel(sess, RequestChannelConfig{
		Identity: s.cfg.Identity,
		Address:  s.cfg.RequestsAddress,
		Process:  s.cfg.Process,
		Logger:   telemetry.WithComponent(s.logger, "requests"),
	})
	if err != nil {
		return nil, err
	}

	status, err := OpenStatusPublisher(sess, StatusPublisherConfig{
		Identity: s.cfg.Identity,
		Address:  s.cfg.StatusAddress,
		Interval: s.cfg.StatusInterval,
		Count:    s.cfg.Count,
		Logger:   telemetry.WithComponent(s.logger, "status"),
	})
	if err != nil {
		requests.Close()
		return nil, err
	}

	genCtx, cancel := context.WithCancel(ctx)
	gen := &generation{
		session:  sess,
		requests: requests,
		status:   status,
		cancel:   cancel,
	}

	gen.wg.Add(2)
	go func() {
		defer gen.wg.Done()
		if err := requests.Run(genCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("request channel stopped", "error", err)
		}
	}()
	go func() {
		defer gen.wg.Done()
		select {
		case <-sess.Done():
			telemetry.SessionUp.Set(0)
			s.logger.Warn("session disconnected")
		case <-genCtx.Done():
		}
	}()

	status.Start()

	return gen, nil
}

// teardown закрывает текущее поколение. Повторные вызовы ничего не делают.
func (s *Supervisor) teardown() {
	s.mu.Lock()
	gen := s.current
	s.current = nil
	s.mu.Unlock()

	if gen == nil {
		return
	}

	gen.cancel()
	if err := gen.status.Stop(); err != nil {
		s.logger.Debug("close status publisher", "error", err)
	}
	if err := gen.requests.Close(); err != nil {
		s.logger.Debug("close request channel", "error", err)
	}
	gen.wg.Wait()

	if err := gen.session.Close(); err != nil {
		s.logger.Warn("failed to close session", "error", err)
	}

	telemetry.SessionUp.Set(0)
	s.logger.Info("session torn down")
}

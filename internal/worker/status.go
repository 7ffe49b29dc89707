package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/upstate/internal/mq"
	"github.com/shaiso/upstate/internal/telemetry"
)

const (
	defaultStatusInterval = 10 * time.Second

	// defaultStatusCount — значение count, пока нет реальной метрики нагрузки.
	defaultStatusCount = 123
)

// CountFunc возвращает значение поля count для статуса.
type CountFunc func() int64

// ConstantCount возвращает CountFunc с фиксированным значением.
func ConstantCount(n int64) CountFunc {
	return func() int64 { return n }
}

// PublisherState — состояние StatusPublisher.
//
// Жизненный цикл:
//
//	ARMED → CANCELLED
type PublisherState string

const (
	// PublisherArmed — расписание активно.
	PublisherArmed PublisherState = "ARMED"

	// PublisherCancelled — расписание снято, статусы больше не отправляются.
	PublisherCancelled PublisherState = "CANCELLED"
)

// StatusPublisherConfig — конфигурация StatusPublisher.
type StatusPublisherConfig struct {
	Identity Identity

	// Address — адрес статусов (default: upstate/worker-status).
	Address string

	// Interval — период публикации (default: 10s).
	Interval time.Duration

	// Count — источник поля count (default: константа 123).
	Count CountFunc

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// StatusPublisher периодически публикует статус воркера.
//
// Публикация best-effort: тик при заполненной очереди пропускается,
// пропущенный статус не откладывается.
type StatusPublisher struct {
	identity Identity
	address  string
	interval time.Duration
	count    CountFunc
	now      func() time.Time
	session  Session
	sender   Sender
	logger   *slog.Logger

	scheduler *cron.Cron

	mu    sync.Mutex
	state PublisherState
	entry cron.EntryID

	stopOnce sync.Once
}

// OpenStatusPublisher открывает sender на адрес статусов.
// Расписание запускается методом Start.
func OpenStatusPublisher(sess Session, cfg StatusPublisherConfig) (*StatusPublisher, error) {
	address := cfg.Address
	if address == "" {
		address = mq.AddressWorkerStatus
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultStatusInterval
	}

	count := cfg.Count
	if count == nil {
		count = ConstantCount(defaultStatusCount)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sender, err := sess.OpenSender(address)
	if err != nil {
		return nil, fmt.Errorf("open status sender %s: %w", address, err)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &StatusPublisher{
		identity: cfg.Identity,
		address:  address,
		interval: interval,
		count:    count,
		now:      now,
		session:  sess,
		sender:   sender,
		logger:   logger,
		scheduler: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		state: PublisherArmed,
	}, nil
}

// Start ставит публикацию на расписание.
func (p *StatusPublisher) Start() {
	p.mu.Lock()
	p.entry = p.scheduler.Schedule(cron.Every(p.interval), cron.FuncJob(p.tick))
	p.mu.Unlock()

	p.scheduler.Start()

	p.logger.Info("status publisher started", "address", p.address, "interval", p.interval)
}

// State возвращает текущее состояние publisher'а.
func (p *StatusPublisher) State() PublisherState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// tick — один такт расписания.
func (p *StatusPublisher) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PublisherCancelled {
		return
	}

	if p.session.IsDisconnected() {
		p.state = PublisherCancelled
		p.scheduler.Remove(p.entry)
		telemetry.StatusUpdates.WithLabelValues(telemetry.OutcomeCancelled).Inc()
		p.logger.Info("session disconnected, status updates cancelled")
		return
	}

	if p.sender.QueueFull() {
		telemetry.StatusUpdates.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		p.logger.Debug("status link is full, skipping update")
		return
	}

	msg := NewStatus(p.identity, p.now(), p.count())

	if err := p.sender.TrySend(msg); err != nil {
		if errors.Is(err, mq.ErrQueueFull) {
			telemetry.StatusUpdates.WithLabelValues(telemetry.OutcomeSkipped).Inc()
			return
		}
		p.logger.Warn("failed to send status update", "error", err)
		return
	}

	telemetry.StatusUpdates.WithLabelValues(telemetry.OutcomeSent).Inc()
	p.logger.Info("sending status update")
}

// Stop снимает расписание, дожидается текущего тика и закрывает sender.
// Повторные вызовы ничего не делают.
func (p *StatusPublisher) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		<-p.scheduler.Stop().Done()

		p.mu.Lock()
		p.state = PublisherCancelled
		p.mu.Unlock()

		err = p.sender.Close()
	})
	return err
}

// NewStatus строит статусное сообщение.
//
// Тела нет, всё содержимое в properties: worker_id, timestamp (epoch millis), count.
func NewStatus(identity Identity, now time.Time, count int64) mq.Message {
	return mq.Message{
		MessageID: uuid.NewString(),
		AppID:     identity.String(),
		Properties: map[string]any{
			"worker_id": identity.String(),
			"timestamp": now.UnixMilli(),
			"count":     count,
		},
		Timestamp: now,
	}
}

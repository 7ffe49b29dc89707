package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики воркера. Регистрируются в default registry и отдаются на /metrics.
var (
	// ConnectAttempts — попытки подключения к брокеру по результату (success/failure).
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstate_worker_connect_attempts_total",
		Help: "Broker connection attempts by result",
	}, []string{"result"})

	// SessionUp — 1, пока у воркера есть открытая сессия.
	SessionUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upstate_worker_session_up",
		Help: "Whether the worker currently holds an open broker session",
	})

	// RequestsReceived — полученные запросы.
	RequestsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstate_worker_requests_received_total",
		Help: "Requests received on the request address",
	})

	// ResponsesSent — ответы, поставленные в очередь на отправку.
	ResponsesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstate_worker_responses_sent_total",
		Help: "Responses handed to the reply link",
	})

	// ResponsesDropped — ответы, отброшенные из-за перегрузки reply link'а.
	ResponsesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstate_worker_responses_dropped_total",
		Help: "Responses dropped because the reply link was congested",
	})

	// ProcessingFailures — запросы, отброшенные из-за ошибки обработки.
	ProcessingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstate_worker_processing_failures_total",
		Help: "Requests dropped because processing failed",
	})

	// StatusUpdates — тики status publisher'а по исходу (sent/skipped/cancelled).
	StatusUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstate_worker_status_updates_total",
		Help: "Status publisher ticks by outcome",
	}, []string{"outcome"})
)

// Значения label'ов.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	OutcomeSent      = "sent"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
)

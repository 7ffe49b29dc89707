package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/upstate/internal/config"
	"github.com/shaiso/upstate/internal/mq"
	"github.com/shaiso/upstate/internal/telemetry"
	"github.com/shaiso/upstate/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()

	identity := worker.NewIdentity(cfg.Worker.IDPrefix)
	logger.Info("starting upstate-worker",
		"version", version,
		"worker_id", identity.String(),
		"host", cfg.Broker.Host,
		"port", cfg.Broker.Port,
	)
	logger.Debug(mq.TopologyInfo())

	process, err := worker.NewRegistry().Get(cfg.Worker.Processor)
	if err != nil {
		return err
	}

	supervisor := worker.NewSupervisor(worker.SupervisorConfig{
		Identity:          identity,
		Dial:              worker.AMQPDialer(cfg.MQConfig(), logger),
		ReconnectInterval: cfg.Worker.ReconnectInterval,
		RequestsAddress:   cfg.Worker.RequestsAddress,
		StatusAddress:     cfg.Worker.StatusAddress,
		StatusInterval:    cfg.Worker.StatusInterval,
		Process:           process,
		Logger:            logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := supervisor.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Metrics.Addr != "" {
		server := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newMux(supervisor),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("listening", "addr", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("upstate-worker stopped")
	return nil
}

// newMux возвращает HTTP mux: /healthz, /readyz, /metrics.
func newMux(supervisor *worker.Supervisor) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !supervisor.Connected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no broker session"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

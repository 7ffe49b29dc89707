// Upstate Worker — обслуживает запросы из брокера.
//
// Worker:
//   - Подключается к RabbitMQ и переподключается каждые 60s после разрыва
//   - Получает запросы из upstate/requests и отвечает на ReplyTo
//   - Каждые 10s публикует статус в upstate/worker-status
//
// Использование:
//
//	upstate-worker [--config FILE] [--metrics-addr ADDR] <host> <port>
//
// Процесс работает до SIGINT/SIGTERM. Код выхода 1 — ошибка запуска.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/upstate/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("worker failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:           "upstate-worker <host> <port>",
		Short:         "Upstate worker — request/reply worker with periodic status updates",
		Version:       version,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8082", "Address for /healthz, /readyz and /metrics (empty to disable)")

	return cmd
}

// loadConfig читает конфигурацию и применяет позиционные аргументы host и port.
func loadConfig(path string, args []string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	port, err := config.ParsePort(args[1])
	if err != nil {
		return nil, err
	}

	cfg.Broker.Host = args[0]
	cfg.Broker.Port = port

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

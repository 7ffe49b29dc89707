// Package config загружает конфигурацию воркера.
//
// Источники (в порядке применения):
//   - значения по умолчанию (Default)
//   - YAML-файл (опционально), ${VAR} в нём раскрываются из окружения
//   - переменная окружения WORKER_PORT (порт /metrics)
//   - позиционные аргументы host и port командной строки (в файле их нет)
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/shaiso/upstate/internal/mq"
)

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация воркера.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Worker  WorkerConfig  `yaml:"worker"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BrokerConfig — подключение к брокеру.
type BrokerConfig struct {
	// Host и Port задаются только позиционными аргументами командной строки.
	Host          string        `yaml:"-"`
	Port          int           `yaml:"-"`
	VHost         string        `yaml:"vhost"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	SendQueueSize int           `yaml:"send_queue_size"`
}

// WorkerConfig — поведение воркера.
type WorkerConfig struct {
	IDPrefix          string        `yaml:"id_prefix"`
	Processor         string        `yaml:"processor"` // имя обработчика из worker.Registry
	RequestsAddress   string        `yaml:"requests_address"`
	StatusAddress     string        `yaml:"status_address"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	StatusInterval    time.Duration `yaml:"status_interval"`
}

// MetricsConfig — HTTP endpoint для /healthz, /readyz и /metrics.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // пусто — endpoint выключен
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:          "localhost",
			Port:          5672,
			DialTimeout:   30 * time.Second,
			Heartbeat:     10 * time.Second,
			SendQueueSize: 64,
		},
		Worker: WorkerConfig{
			IDPrefix:          "worker-go",
			Processor:         "uppercase",
			RequestsAddress:   mq.AddressRequests,
			StatusAddress:     mq.AddressWorkerStatus,
			ReconnectInterval: 60 * time.Second,
			StatusInterval:    10 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":8082",
		},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv заменяет ${VAR} значениями переменных окружения.
// Неизвестные переменные остаются как есть.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load читает конфигурацию. Пустой path — только значения по умолчанию
// и переменные окружения.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = expandEnv(data)

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("WORKER_PORT"); v != "" {
		cfg.Metrics.Addr = ":" + v
	}

	return cfg, nil
}

// ParsePort разбирает номер порта (1–65535).
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidConfig, port)
	}
	return port, nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("%w: broker host is empty", ErrInvalidConfig)
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("%w: broker port %d out of range 1-65535", ErrInvalidConfig, c.Broker.Port)
	}
	if c.Broker.SendQueueSize < 1 {
		return fmt.Errorf("%w: send_queue_size must be positive", ErrInvalidConfig)
	}
	if c.Worker.RequestsAddress == "" || c.Worker.StatusAddress == "" {
		return fmt.Errorf("%w: addresses must not be empty", ErrInvalidConfig)
	}
	if c.Worker.ReconnectInterval <= 0 {
		return fmt.Errorf("%w: reconnect_interval must be positive", ErrInvalidConfig)
	}
	// cron не планирует чаще раза в секунду
	if c.Worker.StatusInterval < time.Second {
		return fmt.Errorf("%w: status_interval must be at least 1s", ErrInvalidConfig)
	}
	return nil
}

// MQConfig возвращает параметры подключения для пакета mq.
// Identity заполняется при подключении.
func (c *Config) MQConfig() mq.Config {
	return mq.Config{
		URL:           mq.BrokerURL(c.Broker.Host, c.Broker.Port, c.Broker.VHost),
		DialTimeout:   c.Broker.DialTimeout,
		Heartbeat:     c.Broker.Heartbeat,
		SendQueueSize: c.Broker.SendQueueSize,
	}
}

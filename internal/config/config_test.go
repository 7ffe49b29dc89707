package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKER_PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Worker.ReconnectInterval != 60*time.Second {
		t.Errorf("reconnect_interval = %v, want 60s", cfg.Worker.ReconnectInterval)
	}
	if cfg.Worker.StatusInterval != 10*time.Second {
		t.Errorf("status_interval = %v, want 10s", cfg.Worker.StatusInterval)
	}
	if cfg.Worker.RequestsAddress != "upstate/requests" {
		t.Errorf("requests_address = %q", cfg.Worker.RequestsAddress)
	}
	if cfg.Worker.StatusAddress != "upstate/worker-status" {
		t.Errorf("status_address = %q", cfg.Worker.StatusAddress)
	}
	if cfg.Metrics.Addr != ":8082" {
		t.Errorf("metrics addr = %q, want :8082", cfg.Metrics.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("WORKER_PORT", "")
	t.Setenv("UPSTATE_VHOST", "staging")

	path := writeConfig(t, `
broker:
  vhost: ${UPSTATE_VHOST}
  send_queue_size: 8
worker:
  id_prefix: worker-blue
  processor: echo
  status_interval: 5s
metrics:
  addr: ":9100"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Broker.VHost != "staging" {
		t.Errorf("vhost = %q, want staging", cfg.Broker.VHost)
	}
	if cfg.Broker.SendQueueSize != 8 {
		t.Errorf("send_queue_size = %d, want 8", cfg.Broker.SendQueueSize)
	}
	if cfg.Worker.IDPrefix != "worker-blue" || cfg.Worker.Processor != "echo" {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if cfg.Worker.StatusInterval != 5*time.Second {
		t.Errorf("status_interval = %v, want 5s", cfg.Worker.StatusInterval)
	}
	// Не указанные в файле поля сохраняют значения по умолчанию
	if cfg.Worker.ReconnectInterval != 60*time.Second {
		t.Errorf("reconnect_interval = %v, want 60s", cfg.Worker.ReconnectInterval)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("metrics addr = %q, want :9100", cfg.Metrics.Addr)
	}

	cfg.Broker.Host = "broker.internal"
	cfg.Broker.Port = 5673
	if got := cfg.MQConfig().URL; got != "amqp://broker.internal:5673/staging" {
		t.Errorf("url = %q", got)
	}
}

func TestLoad_HostPortNotFromFile(t *testing.T) {
	t.Setenv("WORKER_PORT", "")

	path := writeConfig(t, `
broker:
  host: ignored.example
  port: 1234
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// Адрес брокера приходит только из аргументов командной строки
	if cfg.Broker.Host != "localhost" || cfg.Broker.Port != 5672 {
		t.Errorf("broker = %s:%d, want defaults", cfg.Broker.Host, cfg.Broker.Port)
	}
}

func TestLoad_WorkerPortEnv(t *testing.T) {
	t.Setenv("WORKER_PORT", "9200")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("metrics addr = %q, want :9200", cfg.Metrics.Addr)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "broker: [not, a, map]\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("UPSTATE_TEST_HOST", "rabbit")

	got := string(expandEnv([]byte("host: ${UPSTATE_TEST_HOST}\nother: ${UPSTATE_TEST_UNSET}")))
	want := "host: rabbit\nother: ${UPSTATE_TEST_UNSET}"
	if got != want {
		t.Errorf("expandEnv = %q, want %q", got, want)
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"5672", 5672, false},
		{"1", 1, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"65536", 0, true},
		{"-1", 0, true},
		{"amqp", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePort(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParsePort(%q): expected ErrInvalidConfig, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePort(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePort(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Broker.Host = "" }},
		{"bad port", func(c *Config) { c.Broker.Port = 70000 }},
		{"zero queue", func(c *Config) { c.Broker.SendQueueSize = 0 }},
		{"empty address", func(c *Config) { c.Worker.RequestsAddress = "" }},
		{"zero reconnect", func(c *Config) { c.Worker.ReconnectInterval = 0 }},
		{"sub-second status", func(c *Config) { c.Worker.StatusInterval = 500 * time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaiso/upstate/internal/config"
	"github.com/shaiso/upstate/internal/worker"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("WORKER_PORT", "")

	cfg, err := loadConfig("", []string{"rabbit.local", "5673"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Broker.Host != "rabbit.local" || cfg.Broker.Port != 5673 {
		t.Errorf("broker = %s:%d", cfg.Broker.Host, cfg.Broker.Port)
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	for _, port := range []string{"0", "65536", "amqp"} {
		if _, err := loadConfig("", []string{"localhost", port}); !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("port %q: expected ErrInvalidConfig, got %v", port, err)
		}
	}
}

func TestRootCmd_RequiresHostAndPort(t *testing.T) {
	for _, args := range [][]string{{}, {"localhost"}, {"localhost", "5672", "extra"}} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Errorf("args %v: expected error", args)
		}
	}
}

func TestRootCmd_InvalidPort(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"localhost", "99999"})

	if err := cmd.Execute(); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestMux(t *testing.T) {
	// Supervisor без сессии: жив, но не готов
	mux := newMux(worker.NewSupervisor(worker.SupervisorConfig{}))

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusServiceUnavailable, "no broker session"},
		{"/metrics", http.StatusOK, "upstate_worker_session_up"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: expected body to contain %q", tt.path, tt.body)
		}
	}
}

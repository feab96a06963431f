package infra

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestNewOpsServerEnforcesWriteTimeoutFloor(t *testing.T) {
	cfg := &Config{Port: "8080", HTTPWriteTimeout: 5 * time.Second}
	s := NewOpsServer(cfg, http.NewServeMux())
	if s.server.WriteTimeout != time.Minute {
		t.Fatalf("WriteTimeout = %s, want the one-minute expansion floor", s.server.WriteTimeout)
	}

	cfg.HTTPWriteTimeout = 2 * time.Minute
	s = NewOpsServer(cfg, http.NewServeMux())
	if s.server.WriteTimeout != 2*time.Minute {
		t.Fatalf("WriteTimeout = %s, want the configured value", s.server.WriteTimeout)
	}
}

func TestOpsServerNilSafety(t *testing.T) {
	var s *OpsServer
	if err := s.Start(); err != nil {
		t.Fatalf("Start on nil server: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on nil server: %v", err)
	}
}

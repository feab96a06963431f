package infra

import (
	"context"
	"net/http"
	"time"
)

// OpsServer is the worker's HTTP sidecar: liveness, queue stats, and the
// interactive prompt-expansion endpoint. It rides along with the pass loop
// and is shut down with it; it is not a public API surface.
type OpsServer struct {
	server *http.Server
}

// NewOpsServer builds the sidecar server. Write timeout must cover a full
// prompt-expansion round trip, which can take several completion calls.
func NewOpsServer(cfg *Config, handler http.Handler) *OpsServer {
	writeTimeout := cfg.HTTPWriteTimeout
	if writeTimeout < time.Minute {
		writeTimeout = time.Minute
	}
	return &OpsServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *OpsServer) Start() error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

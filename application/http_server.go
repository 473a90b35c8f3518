package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"go.uber.org/zap"
)

// HTTPServer wraps an http.Server around a gin engine
type HTTPServer struct {
	cfg        ServerConfig
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	log        *logger.CtxZapLogger
	errCh      chan error
	mu         sync.Mutex
}

// NewHTTPServer creates the server; nothing listens until Start
func NewHTTPServer(cfg ServerConfig, handler http.Handler, log *logger.CtxZapLogger) *HTTPServer {
	return &HTTPServer{
		cfg:     cfg,
		handler: handler,
		log:     log,
		errCh:   make(chan error, 1),
	}
}

// Start binds the address and serves in the background. A bind failure is
// returned directly; later serve failures arrive on Err.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return fmt.Errorf("http server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
			s.errCh <- err
		}
	}()

	s.log.Info("http server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("mode", s.cfg.Mode))
	return nil
}

// Addr bound address, empty before Start
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Err reports a serve failure after a successful Start
func (s *HTTPServer) Err() <-chan error {
	return s.errCh
}

// Shutdown drains in-flight requests until ctx expires
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.log.Debug("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.log.Debug("http server closed")
	return nil
}

// ShutdownWithTimeout graceful shutdown with timeout
func (s *HTTPServer) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

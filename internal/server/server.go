package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
)

// Server manages the listener and HTTP server lifecycle, including graceful
// shutdown on SIGINT/SIGTERM.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server

	mu          sync.Mutex
	listener    net.Listener
	beforeClose []func()

	ready        chan struct{}
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer wires handler behind the access-log middleware and, when
// enabled, cleartext HTTP/2.
func NewServer(cfg *config.Config, lg *logger.Logger, handler http.Handler) (*Server, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if cfg.Server.Address == nil || *cfg.Server.Address == "" {
		return nil, fmt.Errorf("server listen address (server.address) is not configured")
	}

	h := AccessLog(lg, handler)
	if cfg.Server.H2C() {
		h = h2c.NewHandler(h, &http2.Server{})
	}

	s := &Server{
		cfg: cfg,
		log: lg,
		httpServer: &http.Server{
			Addr:              *cfg.Server.Address,
			Handler:           h,
			ReadHeaderTimeout: cfg.Server.HeaderTimeout(),
		},
		ready:        make(chan struct{}),
		shutdownChan: make(chan struct{}),
	}
	return s, nil
}

// BeforeShutdown registers fn to run at the start of Shutdown, before the
// HTTP server stops. Streaming handlers only return once their writer is
// closed, so whatever owns the writers must close them here.
func (s *Server) BeforeShutdown(fn func()) {
	s.mu.Lock()
	s.beforeClose = append(s.beforeClose, fn)
	s.mu.Unlock()
}

// Start listens on the configured address and serves until a signal
// arrives or Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("failed to listen on %s: address already in use by another process: %w", s.httpServer.Addr, err)
		}
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.log.Info("Server listening", logger.LogFields{
		"address": ln.Addr().String(),
		"h2c":     s.cfg.Server.H2C(),
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			<-s.shutdownChan
			return s.shutdownErr
		}
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		s.log.Info("Received signal, shutting down", logger.LogFields{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
		defer cancel()
		err := s.Shutdown(ctx)
		<-serveErr
		return err
	case <-s.shutdownChan:
		<-serveErr
		return s.shutdownErr
	}
}

// Shutdown runs the BeforeShutdown hooks, then stops accepting connections
// and waits for active requests until ctx is done. Only the first call acts;
// later calls return its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		hooks := append([]func(){}, s.beforeClose...)
		s.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("Graceful shutdown incomplete, closing connections", logger.LogFields{"error": err.Error()})
			_ = s.httpServer.Close()
			s.shutdownErr = fmt.Errorf("graceful shutdown: %w", err)
		}
		s.log.Info("Server stopped")
		close(s.shutdownChan)
	})
	<-s.shutdownChan
	return s.shutdownErr
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

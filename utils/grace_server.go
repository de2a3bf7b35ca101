package utils

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
	"time"

	"go.uber.org/zap"
)

const (
	DEFAULT_READ_TIMEOUT     = 60 * time.Second
	DEFAULT_WRITE_TIMEOUT    = DEFAULT_READ_TIMEOUT
	DEFAULT_SHUTDOWN_TIMEOUT = 30 * time.Second
)

// ShutdownHook runs after the HTTP server stops accepting requests.
type ShutdownHook func(ctx context.Context) error

// Server wraps http.Server to drain in-flight requests on SIGTERM or SIGINT and
// then stop background workers in registration order.
type Server struct {
	*http.Server

	log             *zap.Logger
	listener        net.Listener
	signalChan      chan os.Signal
	shutdownChan    chan struct{}
	shutdownTimeout time.Duration

	mu    sync.Mutex
	hooks []ShutdownHook
	once  sync.Once
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, log *zap.Logger, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		log:             log,
		signalChan:      make(chan os.Signal, 1),
		shutdownChan:    make(chan struct{}),
		shutdownTimeout: DEFAULT_SHUTDOWN_TIMEOUT,
	}
}

// OnShutdown registers a hook to run once the listener is closed.
func (srv *Server) OnShutdown(hook ShutdownHook) {
	srv.mu.Lock()
	srv.hooks = append(srv.hooks, hook)
	srv.mu.Unlock()
}

// ListenAndServe starts serving on tcp and blocks until shutdown has finished.
// The hooks also run when the address cannot be bound.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		// Workers were started before the bind; stop them on the way out
		srv.Shutdown()
		return fmt.Errorf("net.Listen error: %w", err)
	}
	return srv.Serve(ln)
}

// Serve serves on ln. Used directly by tests with an ephemeral listener.
func (srv *Server) Serve(ln net.Listener) error {
	srv.listener = ln
	signal.Notify(srv.signalChan, syscall.SIGTERM, syscall.SIGINT)
	go srv.handleSignals()

	err := srv.Server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		// Wait until Shutdown finished
		<-srv.shutdownChan
		return nil
	}
	srv.Shutdown()
	return err
}

func (srv *Server) handleSignals() {
	select {
	case sig := <-srv.signalChan:
		srv.log.Info("received signal, graceful shutting down HTTP server", zap.String("signal", sig.String()))
		srv.Shutdown()
	case <-srv.shutdownChan:
	}
}

// Shutdown drains the server and runs the hooks. Safe to call more than once.
func (srv *Server) Shutdown() {
	srv.once.Do(func() {
		defer close(srv.shutdownChan)
		signal.Stop(srv.signalChan)

		ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
		defer cancel()
		if err := srv.Server.Shutdown(ctx); err != nil {
			srv.log.Error("HTTP server shutdown error", zap.Error(err))
		} else {
			srv.log.Info("HTTP server shutdown success")
		}

		srv.mu.Lock()
		hooks := append([]ShutdownHook(nil), srv.hooks...)
		srv.mu.Unlock()
		for _, hook := range hooks {
			if err := hook(ctx); err != nil {
				srv.log.Warn("shutdown hook failed", zap.Error(err))
			}
		}
	})
}

// GraceServer starts an HTTP server with graceful capabilities.
func GraceServer(addr string, handler http.Handler, log *zap.Logger, hooks ...ShutdownHook) error {
	srv := NewServer(addr, handler, log, DEFAULT_READ_TIMEOUT, DEFAULT_WRITE_TIMEOUT)
	for _, h := range hooks {
		srv.OnShutdown(h)
	}
	return srv.ListenAndServe()
}

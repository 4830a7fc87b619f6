package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"logpack/internal/limits"

	"go.uber.org/zap"
)

type Server struct {
	Addr string

	httpServer   *http.Server
	ln           net.Listener
	shutdown     ShutdownConfig
	stoppers     []Stopper
	logger       *zap.Logger
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

type StopFunc func(ctx context.Context) error

func (s StopFunc) Stop(ctx context.Context) error {
	return s(ctx)
}

type Options struct {
	Limits   limits.Limits
	Shutdown ShutdownConfig
	// Stoppers run in order after the listener stopped accepting and
	// in-flight requests finished or timed out.
	Stoppers []Stopper
	Logger   *zap.Logger
}

func Start(handler http.Handler, addr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if addr == "" {
		return nil, errors.New("listen address is required")
	}
	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Addr: ln.Addr().String(),
		httpServer: &http.Server{
			Handler:           handler,
			MaxHeaderBytes:    limitConfig.MaxHeaderBytes,
			ReadHeaderTimeout: limitConfig.ReadHeaderTimeout,
			ReadTimeout:       limitConfig.ReadTimeout,
			WriteTimeout:      limitConfig.WriteTimeout,
			IdleTimeout:       limitConfig.IdleTimeout,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		ln:       ln,
		shutdown: ApplyShutdownDefaults(options.Shutdown),
		stoppers: options.Stoppers,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer close(s.done)
	if err := s.httpServer.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server error", zap.Error(err))
	}
}

// Done is closed once the server stopped serving, whether through Shutdown
// or a listener failure.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	if s.shutdown.Drain > 0 {
		time.Sleep(s.shutdown.Drain)
	}

	gracefulCtx, gracefulCancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	defer gracefulCancel()

	var errs []error
	if err := s.httpServer.Shutdown(gracefulCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
		_ = s.httpServer.Close()
	}
	for _, stopper := range s.stoppers {
		if stopper == nil {
			continue
		}
		if err := stopper.Stop(gracefulCtx); err != nil {
			s.logger.Warn("stopper failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

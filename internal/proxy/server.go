package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"egress-gate/internal/config"
	"egress-gate/internal/logger"
)

// Server accepts client connections and hands each one to the Handler on
// its own goroutine.
type Server struct {
	cfg     *config.Config
	handler *Handler
	log     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	ready    atomic.Bool
}

// NewServer builds the proxy listener around a connection handler.
func NewServer(cfg *config.Config, handler *Handler, log *slog.Logger) *Server {
	return &Server{cfg: cfg, handler: handler, log: logger.WithComponent(log, "server")}
}

// Start listens on the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.ready.Store(true)

	s.log.Info("proxy listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.closeListener()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.log.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.Handle(conn)
		}()
	}
}

// Shutdown stops accepting new connections and waits for in-flight ones
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.closeListener()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the listener is accepting connections.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

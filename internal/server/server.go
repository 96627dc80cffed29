package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Server ties the hub to its TCP listener and the optional HTTP side-car.
type Server struct {
	cfg     Config
	log     *slog.Logger
	hub     *Hub
	http    *http.Server
	metrics *prometheus.Registry
}

// New assembles a Server from cfg. The side-car is only created when
// cfg.HTTPAddr is set.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub, err := NewHub(cfg, log, NewMetrics(reg))
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, log: log, hub: hub, metrics: reg}
	if cfg.HTTPAddr != "" {
		s.http = CreateServer(cfg.HTTPAddr, SetupRoutes(hub, cfg, reg, log))
	}
	return s, nil
}

// Hub returns the dispatch hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run binds the chat port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	address := s.cfg.ListenAddr()
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub on ln and, when configured, the HTTP side-car. A side-car
// failure stops the whole server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	if s.http != nil {
		go func() {
			s.log.Info("Starting HTTP side-car", "address", s.http.Addr)
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("HTTP side-car error: %w", err)
				cancel()
			}
		}()
	}

	hubErr := s.hub.Serve(ctx, ln)

	if s.http != nil {
		_ = ShutdownServer(s.http, s.cfg.ShutdownTimeout, s.log)
	}

	select {
	case err := <-errChan:
		return err
	default:
	}
	return hubErr
}

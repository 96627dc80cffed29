// Package server coordinates session registration, packet dispatch, and
// connection cleanup for the chat system via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

const shutdownNotice = "Server is shutting down."

// Hub owns the registry and runs the single dispatch loop. Every accept, read
// and routing decision happens on the goroutine executing Run, so session
// state needs no locking.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	registry *Registry
	router   *Router
	poller   Poller
	metrics  *Metrics
	pumps    sync.WaitGroup
	done     chan struct{}
	sessions atomic.Int64
	users    atomic.Int64
}

// Option customizes a Hub.
type Option func(*Hub)

// WithPoller replaces the default Multiplexer.
func WithPoller(p Poller) Option {
	return func(h *Hub) {
		h.poller = p
	}
}

// WithRegistry injects the registry the hub works on.
func WithRegistry(r *Registry) Option {
	return func(h *Hub) {
		h.registry = r
	}
}

// NewHub creates a Hub ready to Serve. metrics may be nil.
func NewHub(cfg Config, log *slog.Logger, metrics *Metrics, opts ...Option) (*Hub, error) {
	cfg = sanitizeConfig(cfg)

	censorChar, err := CharacterRune(cfg.CensorCharacter)
	if err != nil {
		return nil, err
	}
	moderator, err := NewModerator(cfg.Censored(), censorChar)
	if err != nil {
		return nil, fmt.Errorf("moderation dictionary: %w", err)
	}

	h := &Hub{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	if h.poller == nil {
		h.poller = NewMultiplexer(cfg.ReadChunkSize, cfg.EventBacklog, log)
	}
	h.router = NewRouter(h.registry, log, metrics, moderator)
	return h, nil
}

// Attach hands a transport accepted outside the TCP listener to the hub.
func (h *Hub) Attach(t Transport) error {
	return h.poller.Offer(t)
}

// Done is closed once Run has returned and all sessions are closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// SessionCount is safe to call from any goroutine.
func (h *Hub) SessionCount() int {
	return int(h.sessions.Load())
}

// UserCount is safe to call from any goroutine.
func (h *Hub) UserCount() int {
	return int(h.users.Load())
}

// Serve accepts connections from ln and runs the dispatch loop until ctx is
// cancelled. The listener is closed on return.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	h.log.Info("Chat server listening", "address", ln.Addr().String())
	h.poller.Accept(ln)

	err := h.Run(ctx)
	if closeErr := ln.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		h.log.Warn("Error closing listener", "error", closeErr)
	}
	return err
}

// Run starts the hub's main event loop. It blocks until ctx is cancelled,
// then notifies and closes every session.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		h.router.Reap()
		h.observe()

		select {
		case <-ctx.Done():
			return h.shutdown()

		case ev := <-h.poller.Events():
			h.handleEvent(ev)
		}
	}
}

func (h *Hub) handleEvent(ev Event) {
	switch ev.Kind {
	case EventAccept:
		h.accept(ev)
	case EventRead:
		h.read(ev)
	default:
		h.log.Warn("Ignoring unknown event", "kind", ev.Kind)
	}
}

func (h *Hub) accept(ev Event) {
	if ev.Err != nil {
		h.log.Warn("Accept failed", "error", ev.Err)
		return
	}
	if ev.Transport == nil {
		h.log.Warn("Received nil transport; skipping")
		return
	}

	session, err := NewSession(ev.Transport, h.cfg)
	if err != nil {
		h.log.Error("Cannot create session", "error", err)
		_ = ev.Transport.Close()
		return
	}

	h.registry.Add(session)
	h.log.Info("New connection", "addr", session.addr, "session", session.ID, "sessions", h.registry.Len())

	h.pumps.Add(1)
	go func() {
		defer h.pumps.Done()
		session.writePump(h.log)
	}()
	h.poller.Watch(session.ID, ev.Transport)
}

// read appends one chunk to the session buffer and dispatches every packet
// that became complete, in arrival order.
func (h *Hub) read(ev Event) {
	session := h.registry.FindByID(ev.Session)
	if session == nil {
		return
	}

	if ev.Err != nil || len(ev.Data) == 0 {
		if !isExpectedCloseError(ev.Err) {
			h.log.Warn("Connection error", "session", session.ID, "addr", session.addr, "error", ev.Err)
		}
		h.router.Disconnect(session, "connection closed")
		return
	}

	session.feed(ev.Data)
	for {
		if h.registry.FindByID(session.ID) == nil {
			return
		}

		pkt, ok, err := session.next()
		if err != nil {
			h.log.Warn("Protocol error", "session", session.ID, "addr", session.addr, "error", err)
			h.metrics.protocolError()
			h.router.Disconnect(session, "protocol error")
			return
		}
		if !ok {
			return
		}

		if pkt.Kind != protocol.KindGoodbye && !session.allow() {
			h.log.Warn("Rate limit exceeded; discarding packet", "session", session.ID,
				"burst", h.cfg.RateLimitBurst, "interval", h.cfg.RateLimitRefillInterval)
			h.metrics.rateLimitHit()
			h.router.send(session, protocol.New(protocol.KindError, "Rate limit exceeded; message discarded."))
			continue
		}

		h.router.Dispatch(session, pkt)
	}
}

func (h *Hub) observe() {
	h.sessions.Store(int64(h.registry.Len()))
	h.users.Store(int64(h.registry.ActiveLen()))
	h.metrics.observeRegistry(h.registry)
}

// shutdown sends ABORT to every session, closes them and waits for the write
// pumps to flush, bounded by the configured timeout.
func (h *Hub) shutdown() error {
	h.log.Info("Shutting down all sessions...")

	sessions := h.registry.Sessions()
	for _, s := range sessions {
		_ = s.Send(protocol.New(protocol.KindAbort, shutdownNotice))
		h.registry.Remove(s.ID)
		s.close()
	}
	h.poller.Close()
	h.observe()
	h.log.Info("Closed sessions", "count", len(sessions))

	flushed := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(h.cfg.ShutdownTimeout):
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be flushing")
		return context.DeadlineExceeded
	}
}

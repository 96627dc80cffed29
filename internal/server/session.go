// Package server manages individual chat sessions: the receive buffer the hub
// feeds, the bounded outbound queue, and the write pump draining it.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

// Session is the server-side state of one connected client. All fields except
// the send channel are owned by the hub goroutine.
type Session struct {
	ID           uuid.UUID
	transport    Transport
	addr         string
	username     string
	buffer       *protocol.Buffer
	send         chan []byte
	limiter      *rateLimiter
	writeTimeout time.Duration
	closed       bool
	failed       bool
}

// NewSession creates a Session for transport. The send channel is buffered
// to cfg.SendQueueSize packets.
func NewSession(transport Transport, cfg Config) (*Session, error) {
	buffer, err := protocol.NewBuffer(cfg.MaxPayloadSize)
	if err != nil {
		return nil, fmt.Errorf("session buffer: %w", err)
	}

	addr := "unknown"
	if transport != nil && transport.RemoteAddr() != nil {
		addr = transport.RemoteAddr().String()
	}

	return &Session{
		ID:           uuid.New(),
		transport:    transport,
		addr:         addr,
		buffer:       buffer,
		send:         make(chan []byte, cfg.SendQueueSize),
		limiter:      newRateLimiter(cfg.RateLimit()),
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

// Username returns the bound name, or "" while the session is unregistered.
func (s *Session) Username() string {
	return s.username
}

// Registered reports whether a HELLO has been accepted for this session.
func (s *Session) Registered() bool {
	return s.username != ""
}

// Addr returns the remote address of the transport.
func (s *Session) Addr() string {
	return s.addr
}

// Outbox returns the session's queue of encoded outbound packets.
// This channel is read-only from the caller's perspective.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

func (s *Session) String() string {
	if s.username == "" {
		return s.addr
	}
	return fmt.Sprintf("%s@%s", s.username, s.addr)
}

// Send queues p for delivery without blocking. A full queue means the peer is
// not keeping up and is reported as ErrSendQueueFull.
func (s *Session) Send(p protocol.Packet) error {
	if s.closed {
		return ErrSessionClosed
	}

	data, err := protocol.Encode(p)
	if err != nil {
		return err
	}

	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (s *Session) feed(data []byte) {
	_, _ = s.buffer.Write(data)
}

func (s *Session) next() (protocol.Packet, bool, error) {
	return s.buffer.Next()
}

func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.allow()
}

// close stops accepting packets. The write pump flushes what is already queued
// and then closes the transport.
func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) writePump(log *slog.Logger) {
	defer s.closeTransport(log)

	for data := range s.send {
		if !s.write(data, log) {
			return
		}
	}
}

// write sends one encoded packet and returns false if the transport is unusable.
func (s *Session) write(data []byte, log *slog.Logger) bool {
	if s.writeTimeout > 0 {
		if err := s.transport.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			if !isExpectedCloseError(err) {
				log.Warn("Error setting write deadline", "addr", s.addr, "error", err)
			}
			return false
		}
	}

	if _, err := s.transport.Write(data); err != nil {
		if !isExpectedCloseError(err) {
			log.Warn("Error writing packet", "addr", s.addr, "error", err)
		}
		return false
	}
	return true
}

// closeTransport safely closes the connection with proper error handling
func (s *Session) closeTransport(log *slog.Logger) {
	if err := s.transport.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Warn("Error closing connection", "addr", s.addr, "error", err)
		}
	}
}

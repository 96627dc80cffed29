// Package server turns blocking accepts and reads into readiness events so a
// single hub goroutine can serve every connection.
package server

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind tells the hub what became ready.
type EventKind int

const (
	// EventAccept carries a newly accepted transport (or an accept error).
	EventAccept EventKind = iota
	// EventRead carries one chunk read from a watched session, or the error
	// that ended its stream. An event with neither data nor error is a
	// zero-length read.
	EventRead
)

// Event is one readiness notification.
type Event struct {
	Kind      EventKind
	Session   uuid.UUID
	Transport Transport
	Data      []byte
	Err       error
}

// Poller multiplexes the listening handle and all session transports into one
// stream of events. The hub is its only consumer.
type Poller interface {
	// Accept starts reporting connections accepted from ln.
	Accept(ln net.Listener)
	// Offer injects a transport accepted elsewhere, such as a WebSocket upgrade.
	Offer(t Transport) error
	// Watch starts reporting reads from the transport of session id.
	Watch(id uuid.UUID, t Transport)
	Events() <-chan Event
	// Close stops event delivery. Blocked readers exit once their transport closes.
	Close()
}

const acceptRetryDelay = 50 * time.Millisecond

// Multiplexer is the default Poller. Each listener and each transport gets a
// small goroutine that performs the blocking call and posts the outcome to a
// bounded channel, which gives back-pressure when the hub falls behind.
type Multiplexer struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	chunkSize int
	log       *slog.Logger
}

// NewMultiplexer creates a Multiplexer reading up to chunkSize bytes per event
// and buffering at most backlog events.
func NewMultiplexer(chunkSize, backlog int, log *slog.Logger) *Multiplexer {
	return &Multiplexer{
		events:    make(chan Event, backlog),
		done:      make(chan struct{}),
		chunkSize: chunkSize,
		log:       log,
	}
}

func (m *Multiplexer) Events() <-chan Event {
	return m.events
}

func (m *Multiplexer) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *Multiplexer) post(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Multiplexer) Accept(ln net.Listener) {
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if !m.post(Event{Kind: EventAccept, Err: err}) {
					return
				}
				select {
				case <-time.After(acceptRetryDelay):
				case <-m.done:
					return
				}
				continue
			}

			if !m.post(Event{Kind: EventAccept, Transport: conn}) {
				_ = conn.Close()
				return
			}
		}
	}()
}

func (m *Multiplexer) Offer(t Transport) error {
	if !m.post(Event{Kind: EventAccept, Transport: t}) {
		return ErrHubStopped
	}
	return nil
}

func (m *Multiplexer) Watch(id uuid.UUID, t Transport) {
	go func() {
		buf := make([]byte, m.chunkSize)
		for {
			n, err := t.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				if !m.post(Event{Kind: EventRead, Session: id, Data: data}) {
					return
				}
			}
			if err != nil {
				if !isExpectedCloseError(err) {
					m.log.Debug("Read failed", "session", id, "error", err)
				}
				m.post(Event{Kind: EventRead, Session: id, Err: err})
				return
			}
		}
	}()
}

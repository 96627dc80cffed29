// Package client implements the interactive chat client: it sends HELLO,
// renders what the server pushes and turns typed lines into packets.
package client

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

const goodbyeTimeout = time.Second

// Client drives one connection. Receiving and reading input run on separate
// goroutines; writes to the connection are serialized.
type Client struct {
	conn     net.Conn
	username string
	display  Display
	input    LineReader
	log      *slog.Logger

	writeMu  sync.Mutex
	quitting atomic.Bool
}

// New creates a Client over an established connection.
func New(conn net.Conn, username string, display Display, input LineReader, log *slog.Logger) *Client {
	return &Client{
		conn:     conn,
		username: username,
		display:  display,
		input:    input,
		log:      log,
	}
}

// Dial opens the TCP connection described by target.
func Dial(ctx context.Context, cfg Config, target Target) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.Address(), err)
	}
	return conn, nil
}

// Run registers with the server and serves the session until the user quits,
// ctx is cancelled, or the server ends it. It returns nil on a local quit,
// ErrAborted when the server sent ABORT and ErrConnectionLost otherwise. The
// connection is closed on return.
func (c *Client) Run(ctx context.Context) error {
	if err := c.send(protocol.New(protocol.KindHello, c.username)); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("%w: send HELLO: %v", ErrConnectionLost, err)
	}

	received := make(chan error, 1)
	go func() {
		received <- c.receiveLoop()
	}()

	typed := make(chan error, 1)
	go func() {
		typed <- c.inputLoop()
	}()

	select {
	case err := <-received:
		_ = c.conn.Close()
		return err
	case err := <-typed:
		c.goodbye()
		return err
	case <-ctx.Done():
		c.goodbye()
		return nil
	}
}

func (c *Client) receiveLoop() error {
	for {
		pkt, err := protocol.ReadPacket(c.conn)
		if err != nil {
			if c.quitting.Load() {
				return nil
			}
			if errors.Is(err, protocol.ErrFraming) {
				c.display.ShowNotice(fmt.Sprintf("Error receiving packet: %v", err))
			} else {
				c.display.ShowNotice("Server closed connection.")
			}
			c.log.Debug("Receive loop ended", "error", err)
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}

		c.display.ShowMessage(pkt.Kind, pkt.Payload)
		if pkt.Kind == protocol.KindAbort {
			return ErrAborted
		}
	}
}

func (c *Client) inputLoop() error {
	prompt := c.username + "> "
	for {
		line, err := c.input.ReadLine(prompt)
		if err != nil {
			c.log.Debug("Input ended", "error", err)
			return nil
		}

		action := ParseLine(line)
		for _, notice := range action.Notices {
			c.display.ShowNotice(notice)
		}
		if action.Quit {
			return nil
		}
		if action.Packet == nil {
			continue
		}
		if err := c.send(*action.Packet); err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
	}
}

// goodbye tells the server we are leaving and closes the connection. Errors
// are ignored: the server may already be gone.
func (c *Client) goodbye() {
	c.quitting.Store(true)
	_ = c.conn.SetWriteDeadline(time.Now().Add(goodbyeTimeout))
	if err := c.send(protocol.New(protocol.KindGoodbye, "")); err != nil {
		c.log.Debug("Failed to send GOODBYE", "error", err)
	}
	_ = c.conn.Close()
}

func (c *Client) send(p protocol.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WritePacket(c.conn, p)
}

// Package server exposes the WebSocket gateway: each binary message carries a
// slice of the same packet stream a TCP client would send.
package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

// Gateway upgrades HTTP requests and hands the resulting connections to the hub
// as ordinary sessions.
type Gateway struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	readLimit int64
	log       *slog.Logger
}

// NewGateway creates a Gateway for hub using cfg's origin allow-list.
func NewGateway(hub *Hub, cfg Config, log *slog.Logger) *Gateway {
	policy := newOriginPolicy(cfg.Origins(), log)
	return &Gateway{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		readLimit: int64(2 * (protocol.HeaderSize + cfg.MaxPayloadSize)),
		log:       log,
	}
}

// ServeHTTP upgrades the connection and attaches it to the hub, which takes
// ownership of it from then on.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(g.readLimit)

	if err := g.hub.Attach(newWSTransport(conn)); err != nil {
		g.log.Warn("Rejecting WebSocket connection", "addr", r.RemoteAddr, "error", err)
		_ = conn.Close()
	}
}

// wsTransport presents a WebSocket connection as a byte stream. Message
// boundaries carry no meaning; text messages are ignored.
type wsTransport struct {
	*websocket.Conn
	reader io.Reader
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{Conn: conn}
}

func (t *wsTransport) Read(p []byte) (int, error) {
	for {
		if t.reader == nil {
			messageType, reader, err := t.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			t.reader = reader
		}

		n, err := t.reader.Read(p)
		if err == io.EOF {
			t.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

const (
	testOriginURL = "http://localhost:8080"
	ioTimeout     = 2 * time.Second
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Port = 1
	cfg.Host = "127.0.0.1"
	cfg.WriteTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.RateLimitBurst = 1000
	cfg.AllowedOrigins = testOriginURL
	return cfg
}

// startHub serves a hub on an ephemeral loopback port. The returned stop
// function cancels it and waits for Serve to return; it also runs on cleanup.
func startHub(t *testing.T, cfg Config) (*Hub, string, func() error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hub, err := NewHub(cfg, testLogger(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.Serve(ctx, ln)
	}()

	stopped := false
	var stopErr error
	stop := func() error {
		if stopped {
			return stopErr
		}
		stopped = true
		cancel()
		select {
		case stopErr = <-errCh:
		case <-time.After(2 * cfg.ShutdownTimeout):
			stopErr = errors.New("hub did not stop")
		}
		return stopErr
	}
	t.Cleanup(func() {
		_ = stop()
	})
	return hub, ln.Addr().String(), stop
}

// testClient is a raw protocol peer used to drive the server.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialClient(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return &testClient{t: t, conn: conn}
}

// login connects and registers name, consuming the welcome packet.
func login(t *testing.T, addr, name string) *testClient {
	t.Helper()
	c := dialClient(t, addr)
	c.send(protocol.KindHello, name)
	c.expect(protocol.KindHello, "Welcome, "+name+"!")
	return c
}

func (c *testClient) send(kind protocol.Kind, payload string) {
	c.t.Helper()
	require.NoError(c.t, protocol.WritePacket(c.conn, protocol.New(kind, payload)))
}

func (c *testClient) sendRaw(data []byte) {
	c.t.Helper()
	_, err := c.conn.Write(data)
	require.NoError(c.t, err)
}

func (c *testClient) read() (protocol.Packet, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	return protocol.ReadPacket(c.conn)
}

func (c *testClient) expect(kind protocol.Kind, payload string) {
	c.t.Helper()
	pkt, err := c.read()
	require.NoError(c.t, err)
	require.Equal(c.t, protocol.New(kind, payload), pkt)
}

// expectClosed waits for the server to close the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	_, err := c.read()
	require.Error(c.t, err)
	require.True(c.t, errors.Is(err, io.EOF) || isExpectedCloseError(err), "unexpected error: %v", err)
}

// expectSilence asserts nothing arrives for d.
func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	pkt, err := protocol.ReadPacket(c.conn)
	var netErr net.Error
	require.ErrorAs(c.t, err, &netErr, "unexpected packet %s", pkt)
	require.True(c.t, netErr.Timeout())
}

func (c *testClient) close() {
	_ = c.conn.Close()
}

// eventually polls cond until it holds or the I/O timeout expires.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, ioTimeout, 10*time.Millisecond)
}

// connectWebSocket dials url with an Origin header the default test
// configuration accepts.
func connectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", testOriginURL)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

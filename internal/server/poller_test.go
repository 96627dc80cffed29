package server

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, m *Multiplexer) Event {
	t.Helper()
	select {
	case ev := <-m.Events():
		return ev
	case <-time.After(ioTimeout):
		t.Fatal("no event")
		return Event{}
	}
}

func TestMultiplexer_AcceptAndWatch(t *testing.T) {
	req := require.New(t)
	m := NewMultiplexer(4, 8, testLogger())
	defer m.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer ln.Close()
	m.Accept(ln)

	client, err := net.Dial("tcp", ln.Addr().String())
	req.NoError(err)
	defer client.Close()

	accepted := nextEvent(t, m)
	req.Equal(EventAccept, accepted.Kind)
	req.NoError(accepted.Err)
	req.NotNil(accepted.Transport)

	id := uuid.New()
	m.Watch(id, accepted.Transport)

	// Reads arrive in chunks of at most the configured size
	_, err = client.Write([]byte("abcdef"))
	req.NoError(err)
	var got []byte
	for len(got) < 6 {
		ev := nextEvent(t, m)
		req.Equal(EventRead, ev.Kind)
		req.Equal(id, ev.Session)
		req.LessOrEqual(len(ev.Data), 4)
		got = append(got, ev.Data...)
	}
	req.Equal("abcdef", string(got))

	// The end of the stream is reported once
	req.NoError(client.Close())
	ev := nextEvent(t, m)
	req.Equal(EventRead, ev.Kind)
	req.Error(ev.Err)
	req.Empty(ev.Data)
}

func TestMultiplexer_OfferAfterClose(t *testing.T) {
	req := require.New(t)
	m := NewMultiplexer(4, 1, testLogger())

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	req.NoError(m.Offer(serverSide))
	m.Close()
	m.Close()

	// The backlog is full and the multiplexer closed
	req.ErrorIs(m.Offer(serverSide), ErrHubStopped)
}

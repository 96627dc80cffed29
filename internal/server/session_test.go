package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

func TestSession_WritePumpFlushesThenCloses(t *testing.T) {
	req := require.New(t)
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	s, err := NewSession(serverSide, testConfig())
	req.NoError(err)
	req.Equal("pipe", s.Addr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(testLogger())
	}()

	// Given two queued packets and a closed session
	req.NoError(s.Send(protocol.New(protocol.KindHello, "Welcome, alice!")))
	req.NoError(s.Send(protocol.New(protocol.KindAbort, "bye")))
	s.close()
	s.close()
	req.ErrorIs(s.Send(protocol.New(protocol.KindChat, "late")), ErrSessionClosed)

	// Then both are delivered before the transport closes
	pkt, err := protocol.ReadPacket(clientSide)
	req.NoError(err)
	req.Equal(protocol.New(protocol.KindHello, "Welcome, alice!"), pkt)
	pkt, err = protocol.ReadPacket(clientSide)
	req.NoError(err)
	req.Equal(protocol.New(protocol.KindAbort, "bye"), pkt)

	_, err = protocol.ReadPacket(clientSide)
	req.Error(err)
	<-done
}

func TestSession_SendRejectsOversizedPayload(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)

	err := s.Send(protocol.New(protocol.KindChat, string(make([]byte, protocol.MaxPayloadSize+1))))

	req.ErrorIs(err, protocol.ErrPayloadTooLarge)
	req.Empty(queued(t, s))
}

func TestSession_String(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)
	req.Equal("unknown", s.String())

	s.username = "alice"
	req.Equal("alice@unknown", s.String())
}

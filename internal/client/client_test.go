package client_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/packetchat/internal/client"
	"github.com/Tyrowin/packetchat/internal/client/mocks"
	"github.com/Tyrowin/packetchat/internal/protocol"
)

const prompt = "alice> "

// collect reads packets from conn until it fails and delivers them all.
func collect(conn net.Conn) <-chan []protocol.Packet {
	out := make(chan []protocol.Packet, 1)
	go func() {
		var got []protocol.Packet
		for {
			pkt, err := protocol.ReadPacket(conn)
			if err != nil {
				_ = conn.Close()
				out <- got
				return
			}
			got = append(got, pkt)
		}
	}()
	return out
}

// blockInput makes ReadLine block until the test ends.
func blockInput(t *testing.T, reader *mocks.MockLineReader) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	reader.EXPECT().ReadLine(prompt).DoAndReturn(func(string) (string, error) {
		<-release
		return "", io.EOF
	}).AnyTimes()
}

func waitPackets(t *testing.T, ch <-chan []protocol.Packet) []protocol.Packet {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("server side never finished reading")
		return nil
	}
}

func TestClient_Run_QuitSendsGoodbye(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	display := mocks.NewMockDisplay(ctrl)
	reader := mocks.NewMockLineReader(ctrl)
	serverConn, clientConn := net.Pipe()
	received := collect(serverConn)

	// Given a user who types a chat line, an emote, an unknown command and quits
	gomock.InOrder(
		reader.EXPECT().ReadLine(prompt).Return("hello everyone", nil),
		reader.EXPECT().ReadLine(prompt).Return("/me waves", nil),
		reader.EXPECT().ReadLine(prompt).Return("/dance", nil),
		reader.EXPECT().ReadLine(prompt).Return("/q", nil),
	)
	display.EXPECT().ShowNotice("command /dance not recognized.")

	// When the client runs
	c := client.New(clientConn, "alice", display, reader, slog.New(slog.DiscardHandler))
	err := c.Run(context.Background())

	// Then it ends cleanly after HELLO, the two messages and GOODBYE
	req.NoError(err)
	req.Equal([]protocol.Packet{
		protocol.New(protocol.KindHello, "alice"),
		protocol.New(protocol.KindChat, "hello everyone"),
		protocol.New(protocol.KindEmote, "waves"),
		protocol.New(protocol.KindGoodbye, ""),
	}, waitPackets(t, received))
}

func TestClient_Run_EndOfInputActsAsQuit(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	display := mocks.NewMockDisplay(ctrl)
	reader := mocks.NewMockLineReader(ctrl)
	serverConn, clientConn := net.Pipe()
	received := collect(serverConn)

	reader.EXPECT().ReadLine(prompt).Return("", io.EOF)

	err := client.New(clientConn, "alice", display, reader, slog.New(slog.DiscardHandler)).Run(context.Background())

	req.NoError(err)
	req.Equal([]protocol.Packet{
		protocol.New(protocol.KindHello, "alice"),
		protocol.New(protocol.KindGoodbye, ""),
	}, waitPackets(t, received))
}

func TestClient_Run_Abort(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	display := mocks.NewMockDisplay(ctrl)
	reader := mocks.NewMockLineReader(ctrl)
	serverConn, clientConn := net.Pipe()
	blockInput(t, reader)

	// Given a server that welcomes the user and then shuts down
	go func() {
		if _, err := protocol.ReadPacket(serverConn); err != nil {
			return
		}
		_ = protocol.WritePacket(serverConn, protocol.New(protocol.KindHello, "Welcome, alice!"))
		_ = protocol.WritePacket(serverConn, protocol.New(protocol.KindAbort, "Server is shutting down."))
		_, _ = io.Copy(io.Discard, serverConn)
	}()
	gomock.InOrder(
		display.EXPECT().ShowMessage(protocol.KindHello, "Welcome, alice!"),
		display.EXPECT().ShowMessage(protocol.KindAbort, "Server is shutting down."),
	)

	// When the client runs
	err := client.New(clientConn, "alice", display, reader, slog.New(slog.DiscardHandler)).Run(context.Background())

	// Then the session ends with an abort
	req.ErrorIs(err, client.ErrAborted)
}

func TestClient_Run_ConnectionLost(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	display := mocks.NewMockDisplay(ctrl)
	reader := mocks.NewMockLineReader(ctrl)
	serverConn, clientConn := net.Pipe()
	blockInput(t, reader)

	// Given a server that hangs up right after HELLO
	go func() {
		_, _ = protocol.ReadPacket(serverConn)
		_ = serverConn.Close()
	}()
	display.EXPECT().ShowNotice("Server closed connection.")

	err := client.New(clientConn, "alice", display, reader, slog.New(slog.DiscardHandler)).Run(context.Background())

	req.ErrorIs(err, client.ErrConnectionLost)
	req.NotErrorIs(err, client.ErrAborted)
}

func TestClient_Run_CancelSendsGoodbye(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	display := mocks.NewMockDisplay(ctrl)
	reader := mocks.NewMockLineReader(ctrl)
	serverConn, clientConn := net.Pipe()
	blockInput(t, reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given a server that cancels the client once HELLO arrives
	received := make(chan []protocol.Packet, 1)
	go func() {
		var got []protocol.Packet
		for {
			pkt, err := protocol.ReadPacket(serverConn)
			if err != nil {
				received <- got
				return
			}
			got = append(got, pkt)
			if pkt.Kind == protocol.KindHello {
				cancel()
			}
		}
	}()

	err := client.New(clientConn, "alice", display, reader, slog.New(slog.DiscardHandler)).Run(ctx)

	req.NoError(err)
	req.Equal([]protocol.Packet{
		protocol.New(protocol.KindHello, "alice"),
		protocol.New(protocol.KindGoodbye, ""),
	}, waitPackets(t, received))
}

func TestConsole_ReadLineTrimsNewline(t *testing.T) {
	req := require.New(t)
	var out strings.Builder
	console := client.NewConsole(strings.NewReader("hi there\r\nlast"), &out, false)

	line, err := console.ReadLine(prompt)
	req.NoError(err)
	req.Equal("hi there", line)

	line, err = console.ReadLine(prompt)
	req.NoError(err)
	req.Equal("last", line)

	_, err = console.ReadLine(prompt)
	req.ErrorIs(err, io.EOF)

	console.ShowMessage(protocol.KindChat, "Total users: 1\nalice")
	req.Contains(out.String(), "\rTotal users: 1\n\ralice\n"+prompt)
}

package protocol

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, packets []Packet) []byte {
	t.Helper()
	var out []byte
	for _, p := range packets {
		data, err := Encode(p)
		require.NoError(t, err)
		out = append(out, data...)
	}
	return out
}

func drain(t *testing.T, b *Buffer) []Packet {
	t.Helper()
	var out []Packet
	for {
		pkt, ok, err := b.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, pkt)
	}
}

func samplePackets() []Packet {
	return []Packet{
		New(KindHello, "alice"),
		New(KindChat, "hi everyone"),
		New(KindEmote, "waves"),
		New(KindDM, "bob see you at 5"),
		New(KindCommand, "users"),
		New(KindChat, ""),
		New(KindChat, strings.Repeat("long ", 400)),
		New(KindGoodbye, ""),
	}
}

func TestBuffer_BackToBackPackets(t *testing.T) {
	req := require.New(t)
	b, err := NewBuffer(0)
	req.NoError(err)
	packets := samplePackets()

	// When every packet arrives in one read
	_, _ = b.Write(encodeAll(t, packets))

	// Then they all come out in order and nothing is left behind
	req.Equal(packets, drain(t, b))
	req.Zero(b.Len())
}

func TestBuffer_ArbitrarySplits(t *testing.T) {
	packets := samplePackets()
	stream := encodeAll(t, packets)
	rng := rand.New(rand.NewSource(7))

	for _, maxChunk := range []int{1, 2, 3, 5, 64, 1028} {
		req := require.New(t)
		b, err := NewBuffer(0)
		req.NoError(err)

		var got []Packet
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(maxChunk)
			if n > len(rest) {
				n = len(rest)
			}
			_, _ = b.Write(rest[:n])
			rest = rest[n:]
			got = append(got, drain(t, b)...)
		}

		req.Equal(packets, got, "chunks of at most %d bytes", maxChunk)
		req.Zero(b.Len())
	}
}

func TestBuffer_IncompleteKeepsBytes(t *testing.T) {
	req := require.New(t)
	b, err := NewBuffer(0)
	req.NoError(err)
	data, _ := Encode(New(KindChat, "partial"))

	_, _ = b.Write(data[:4])
	_, ok, err := b.Next()

	req.NoError(err)
	req.False(ok)
	req.Equal(4, b.Len())

	_, _ = b.Write(data[4:])
	pkt, ok, err := b.Next()
	req.NoError(err)
	req.True(ok)
	req.Equal(New(KindChat, "partial"), pkt)
}

func TestBuffer_DeclaredLengthOverLimit(t *testing.T) {
	req := require.New(t)
	b, err := NewBuffer(16)
	req.NoError(err)

	// Given a header announcing more than the limit, even before the payload arrives
	_, _ = b.Write([]byte{byte(KindChat), 0x00, 0x20})

	// Then it is corruption, not insufficiency
	_, ok, err := b.Next()
	req.False(ok)
	req.ErrorIs(err, ErrFraming)
}

func TestBuffer_UnknownKind(t *testing.T) {
	req := require.New(t)
	b, err := NewBuffer(0)
	req.NoError(err)

	_, _ = b.Write([]byte{9, 0, 0})
	_, _, err = b.Next()

	req.ErrorIs(err, ErrFraming)
}

func TestNewBuffer_InvalidLimit(t *testing.T) {
	_, err := NewBuffer(MaxPayloadSize + 1)
	require.ErrorIs(t, err, ErrInvalidLimit)

	_, err = NewBuffer(-1)
	require.ErrorIs(t, err, ErrInvalidLimit)
}

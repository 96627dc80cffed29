// Package protocol implements the length-prefixed binary framing shared by the
// chat server and its clients.
//
// Every packet on the wire is laid out as
//
//	[1 byte kind][2 bytes big-endian payload length][payload, UTF-8]
//
// The package offers a pure Encode/Decode pair, a Buffer that reassembles
// packets from arbitrarily split reads, and blocking stream helpers.
package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// HeaderSize is the number of bytes preceding every payload.
const HeaderSize = 3

// MaxPayloadSize is the largest payload the two byte length field can carry.
const MaxPayloadSize = 0xFFFF

// Kind identifies the meaning of a packet.
type Kind uint8

// Packet kinds, by wire ordinal.
const (
	KindHello Kind = iota
	KindGoodbye
	KindChat
	KindEmote
	KindDM
	KindCommand
	KindError
	KindAbort
)

var kindNames = [...]string{
	KindHello:   "HELLO",
	KindGoodbye: "GOODBYE",
	KindChat:    "CHAT",
	KindEmote:   "EMOTE",
	KindDM:      "DM",
	KindCommand: "COMMAND",
	KindError:   "ERROR",
	KindAbort:   "ABORT",
}

// Kinds returns every known kind in ordinal order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is one of the known packet kinds.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Packet is one framed protocol message.
type Packet struct {
	Kind    Kind
	Payload string
}

// New builds a packet of the given kind.
func New(kind Kind, payload string) Packet {
	return Packet{Kind: kind, Payload: payload}
}

func (p Packet) String() string {
	return fmt.Sprintf("%s(%q)", p.Kind, p.Payload)
}

// Encode serializes p into its wire representation.
func Encode(p Packet) ([]byte, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(p.Kind))
	}
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}
	if !utf8.ValidString(p.Payload) {
		return nil, ErrInvalidPayload
	}

	out := make([]byte, HeaderSize+len(p.Payload))
	out[0] = byte(p.Kind)
	binary.BigEndian.PutUint16(out[1:HeaderSize], uint16(len(p.Payload)))
	copy(out[HeaderSize:], p.Payload)
	return out, nil
}

// Decode extracts the first packet from buf and returns it together with the
// number of bytes it occupied. ErrIncomplete is returned while buf does not yet
// hold a whole packet; callers keep buffering in that case. Corrupt input
// yields a *FramingError.
func Decode(buf []byte) (Packet, int, error) {
	return decode(buf, MaxPayloadSize)
}

func decode(buf []byte, maxPayload int) (Packet, int, error) {
	if len(buf) < HeaderSize {
		return Packet{}, 0, ErrIncomplete
	}

	kind := Kind(buf[0])
	if !kind.Valid() {
		return Packet{}, 0, &FramingError{Reason: fmt.Sprintf("unknown packet kind %d", buf[0])}
	}

	length := int(binary.BigEndian.Uint16(buf[1:HeaderSize]))
	if length > maxPayload {
		return Packet{}, 0, &FramingError{
			Kind:   kind,
			Reason: fmt.Sprintf("declared payload of %d bytes exceeds limit of %d", length, maxPayload),
		}
	}

	total := HeaderSize + length
	if len(buf) < total {
		return Packet{}, 0, ErrIncomplete
	}

	payload := buf[HeaderSize:total]
	if !utf8.Valid(payload) {
		return Packet{}, 0, &FramingError{Kind: kind, Reason: "payload is not valid UTF-8"}
	}

	return Packet{Kind: kind, Payload: string(payload)}, total, nil
}

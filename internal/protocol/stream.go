package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// WritePacket encodes p and writes it to w in a single call.
func WritePacket(w io.Writer, p Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if _, err = w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", p.Kind, err)
	}
	return nil
}

// ReadPacket blocks until one whole packet has been read from r. Reading
// exactly the header and then exactly the payload keeps the stream aligned
// regardless of how the transport fragments it.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, err
	}

	kind := Kind(header[0])
	if !kind.Valid() {
		return Packet{}, &FramingError{Reason: fmt.Sprintf("unknown packet kind %d", header[0])}
	}

	payload := make([]byte, binary.BigEndian.Uint16(header[1:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	if !utf8.Valid(payload) {
		return Packet{}, &FramingError{Kind: kind, Reason: "payload is not valid UTF-8"}
	}

	return Packet{Kind: kind, Payload: string(payload)}, nil
}

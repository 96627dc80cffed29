package protocol

import "errors"

// Buffer accumulates bytes read from a stream and hands out complete packets.
// It is not safe for concurrent use.
type Buffer struct {
	data       []byte
	maxPayload int
}

// NewBuffer returns a Buffer that rejects packets declaring more than
// maxPayload bytes. Zero selects MaxPayloadSize.
func NewBuffer(maxPayload int) (*Buffer, error) {
	if maxPayload < 0 || maxPayload > MaxPayloadSize {
		return nil, ErrInvalidLimit
	}
	if maxPayload == 0 {
		maxPayload = MaxPayloadSize
	}
	return &Buffer{maxPayload: maxPayload}, nil
}

// Write appends p to the pending bytes. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// Len returns the number of bytes not yet consumed.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Next removes and returns the next complete packet. ok is false when the
// pending bytes do not yet form a packet. A framing error leaves the buffer
// as it was; the stream is unusable from then on.
func (b *Buffer) Next() (pkt Packet, ok bool, err error) {
	pkt, n, err := decode(b.data, b.maxPayload)
	if errors.Is(err, ErrIncomplete) {
		return Packet{}, false, nil
	}
	if err != nil {
		return Packet{}, false, err
	}

	b.data = b.data[n:]
	if len(b.data) == 0 {
		// release the backing array between bursts
		b.data = nil
	}
	return pkt, true, nil
}

// Reset discards all pending bytes.
func (b *Buffer) Reset() {
	b.data = nil
}

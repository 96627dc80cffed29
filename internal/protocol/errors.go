package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means more bytes are needed before a packet can be decoded.
	ErrIncomplete = errors.New("incomplete packet")
	// ErrFraming is matched by every *FramingError.
	ErrFraming         = errors.New("framing error")
	ErrPayloadTooLarge = errors.New("payload too large (max 65535 bytes)")
	ErrInvalidKind     = errors.New("invalid packet kind")
	ErrInvalidPayload  = errors.New("payload is not valid UTF-8")
	ErrInvalidLimit    = errors.New("payload limit must be between 0 and 65535")
)

// FramingError reports a byte stream that can never become a valid packet.
type FramingError struct {
	Kind   Kind
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s", e.Reason)
}

func (e *FramingError) Unwrap() error {
	return ErrFraming
}

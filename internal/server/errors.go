package server

import (
	"errors"
	"fmt"
)

var (
	ErrUsernameTaken     = errors.New("username already taken")
	ErrAlreadyRegistered = errors.New("session already has a username")
	ErrUnknownSession    = errors.New("unknown session")
	ErrSendQueueFull     = errors.New("send queue full")
	ErrSessionClosed     = errors.New("session closed")
	ErrHubStopped        = errors.New("hub stopped")
)

// ApplicationError is a recoverable violation reported back to the offending
// client as an ERROR packet. Fatal errors also end the session.
type ApplicationError struct {
	Message string
	Fatal   bool
}

func (e *ApplicationError) Error() string {
	return e.Message
}

func reject(format string, args ...any) *ApplicationError {
	return &ApplicationError{Message: fmt.Sprintf(format, args...)}
}

func rejectAndClose(format string, args ...any) *ApplicationError {
	return &ApplicationError{Message: fmt.Sprintf(format, args...), Fatal: true}
}

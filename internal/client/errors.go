package client

import "errors"

var (
	// ErrAborted means the server sent ABORT.
	ErrAborted = errors.New("server aborted the session")
	// ErrConnectionLost means the connection ended without ABORT or a local quit.
	ErrConnectionLost = errors.New("connection to server lost")
	// ErrInvalidArgs wraps command-line argument validation failures.
	ErrInvalidArgs = errors.New("invalid arguments")
)

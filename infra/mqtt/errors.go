package mqtt

import "errors"

var (
	// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	// ErrNotConnected is returned when publishing without a connection.
	ErrNotConnected = errors.New("mqtt client not connected")
)

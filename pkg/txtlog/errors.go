package txtlog

import "errors"

var (
	// ErrNotReady is returned when a record is submitted while no log file is open.
	ErrNotReady = errors.New("not ready")

	// ErrQueueFull is returned when the submission queue is at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrClosed is returned once the submission queue has been closed.
	ErrClosed = errors.New("queue closed")

	// ErrPayloadTooLong is returned for payloads over MaxPayload bytes.
	ErrPayloadTooLong = errors.New("payload too long")

	// ErrUnknownCategory is returned for categories outside the fixed set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrReceive wraps an unexpected failure while the writer waits for entries.
	ErrReceive = errors.New("queue receive failed")
)

package pipeline

import "errors"

var (
	// ErrShutdown marks a graceful stop; it is never a failure.
	ErrShutdown = errors.New("shutdown requested")

	// ErrQueueClosed is returned when pushing into a closed queue.
	ErrQueueClosed = errors.New("queue closed")
)

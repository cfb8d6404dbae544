package topic

import "errors"

var (
	// ErrDraining is returned when an operation is attempted against a topic
	// that has begun shutting down but has not yet fully closed.
	ErrDraining = errors.New("topic is draining")
	// ErrClosed is returned when an operation is attempted against a topic
	// whose worker has already exited.
	ErrClosed = errors.New("topic is closed")
)

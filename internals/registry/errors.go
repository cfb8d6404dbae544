package registry

import "errors"

var (
	// ErrInvalidTopicName is returned when a topic name fails the
	// [A-Za-z0-9_-]{1,256} constraint.
	ErrInvalidTopicName = errors.New("invalid topic name")

	// ErrTopicNotFound is returned when trying to access a topic that doesn't exist.
	ErrTopicNotFound = errors.New("topic not found")

	// ErrShuttingDown is returned when a mutating call is rejected because the
	// broker has begun its graceful shutdown sequence.
	ErrShuttingDown = errors.New("registry is shutting down")
)

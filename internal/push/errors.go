package push

import "errors"

// Domain-specific errors for push-channel operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("push: connection failed")

	// ErrNotConnected is returned when attempting operations on a closed or
	// disconnected connection.
	ErrNotConnected = errors.New("push: not connected")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("push: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("push: topic cannot be empty")
)

package queue

import "errors"

var (
	// ErrNotFound is returned when an operation references an unknown item.
	ErrNotFound = errors.New("queue item not found")
	// ErrNotReady is returned when playback is requested for an item whose
	// media is not downloaded yet.
	ErrNotReady = errors.New("queue item not ready")
	// ErrNotConnected is returned when playback is requested without a
	// connected receiver.
	ErrNotConnected = errors.New("no receiver connected")
)

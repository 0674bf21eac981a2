package sink

import "errors"

var (
	// ErrNotConnected is returned when an operation requires a connected
	// receiver and there is none.
	ErrNotConnected = errors.New("not connected to a receiver")
	// ErrNoActiveSession is returned by playback controls when nothing is
	// loaded on the receiver.
	ErrNoActiveSession = errors.New("no active media session")
	// ErrSessionExpired is returned when the receiver no longer recognizes
	// the media session a control was sent to.
	ErrSessionExpired = errors.New("media session expired")
	// ErrConnectTimeout is returned when a receiver does not answer the
	// connection handshake in time.
	ErrConnectTimeout = errors.New("receiver connection timed out")
	// ErrLaunchFailed is returned when the receiver app cannot be started.
	ErrLaunchFailed = errors.New("launching receiver app failed")
	// ErrLoadFailed is returned when the receiver rejects a media load.
	ErrLoadFailed = errors.New("loading media failed")
	// ErrUnsupported is returned for controls the active transport does not
	// expose.
	ErrUnsupported = errors.New("not supported by receiver transport")
)

package sink

import "context"

// Device identifies a cast receiver on the network. Discovery is out of
// scope; callers supply the address.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Transport is one wire connection to a receiver. Implementations must not
// invoke registered callbacks while holding internal locks, and must stop
// invoking them after Close.
type Transport interface {
	// Connect performs the connection handshake.
	Connect(ctx context.Context) error
	// Launch starts the default media receiver app and returns a handle to
	// its media session.
	Launch(ctx context.Context) (MediaSession, error)
	// SetVolume adjusts the receiver volume. The level is already clamped
	// to [0,1] by the session.
	SetVolume(ctx context.Context, level float64) error
	// Close tears down the connection. When stopMedia is set, playback is
	// stopped first.
	Close(stopMedia bool) error
	// OnClose registers a callback for connection teardown initiated by
	// the receiver or the network.
	OnClose(fn func())
	// OnError registers a callback for transport-level failures.
	OnError(fn func(error))
}

// MediaItem is the payload handed to the receiver app for one file.
type MediaItem struct {
	URL         string
	ContentType string
	Title       string
	// Thumbnail is artwork for the receiver UI. Transports whose wire
	// protocol has no artwork slot ignore it.
	Thumbnail string
	// Duration seeds the receiver UI; zero means unknown.
	Duration float64
	Autoplay bool
}

// ReceiverStatus is the raw status a transport reports. Fields the receiver
// did not include stay at their zero value, with the *Set flags
// distinguishing "zero" from "absent" for volume and mute.
type ReceiverStatus struct {
	PlayerState string
	IdleReason  string
	CurrentTime float64
	Duration    float64
	Title       string
	Volume      float64
	VolumeSet   bool
	Muted       bool
	MutedSet    bool
}

// MediaSession controls media on a launched receiver app. Control calls
// return ErrSessionExpired (possibly wrapped) when the receiver has dropped
// the session.
type MediaSession interface {
	Load(ctx context.Context, item MediaItem) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	Status(ctx context.Context) (ReceiverStatus, error)
	// OnStatus registers a callback for receiver-pushed status updates.
	OnStatus(fn func(ReceiverStatus))
}

// TransportFactory builds a fresh transport per connection attempt.
type TransportFactory func(device Device) (Transport, error)

// Package go2tvcast backs sink.Transport with go2tv's cast protocol client.
//
// The client exposes load, stop, status, and teardown. Controls it does not
// expose (pause, seek, receiver volume) return ErrUnsupported; the session
// layer surfaces those to callers as-is. Status is poll-driven: the client
// has no push channel, so the session's poll backstop is the only source of
// receiver state.
package go2tvcast

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"go2tv.app/go2tv/v2/castprotocol"

	"hearth/internal/sink"
)

// ErrUnsupported marks controls the cast protocol client does not expose.
var ErrUnsupported = sink.ErrUnsupported

const stateIdle = "IDLE"

// Factory builds cast transports for sink.Session.
func Factory() sink.TransportFactory {
	return func(device sink.Device) (sink.Transport, error) {
		port := device.Port
		if port == 0 {
			port = 8009
		}
		addr := net.JoinHostPort(device.Host, strconv.Itoa(port))
		client, err := castprotocol.NewCastClient(addr)
		if err != nil {
			return nil, fmt.Errorf("cast client for %s: %w", addr, err)
		}
		return &transport{client: client}, nil
	}
}

type transport struct {
	mu      sync.Mutex
	client  *castprotocol.CastClient
	started bool
	stopped bool
	last    string
}

func (t *transport) Connect(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- t.client.Connect() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Launch hands out the media session handle. The receiver app itself starts
// lazily on the first Load; the client owns that handshake.
func (t *transport) Launch(context.Context) (sink.MediaSession, error) {
	return &mediaSession{t: t}, nil
}

func (t *transport) SetVolume(context.Context, float64) error {
	return fmt.Errorf("set volume: %w", ErrUnsupported)
}

func (t *transport) Close(stopMedia bool) error {
	return t.client.Close(stopMedia)
}

// OnClose is a no-op: the client reports connection loss only as errors from
// subsequent calls, which the session's status polling converts into resets.
func (t *transport) OnClose(func()) {}

func (t *transport) OnError(func(error)) {}

type mediaSession struct {
	t *transport
}

func (m *mediaSession) Load(_ context.Context, item sink.MediaItem) error {
	m.t.mu.Lock()
	m.t.started = false
	m.t.stopped = false
	m.t.last = ""
	m.t.mu.Unlock()
	return m.t.client.Load(item.URL, item.ContentType, 0, item.Duration, "", false)
}

func (m *mediaSession) Play(context.Context) error {
	return fmt.Errorf("play: %w", ErrUnsupported)
}

func (m *mediaSession) Pause(context.Context) error {
	return fmt.Errorf("pause: %w", ErrUnsupported)
}

func (m *mediaSession) Stop(context.Context) error {
	m.t.mu.Lock()
	m.t.stopped = true
	m.t.mu.Unlock()
	return m.t.client.Stop()
}

func (m *mediaSession) Seek(context.Context, float64) error {
	return fmt.Errorf("seek: %w", ErrUnsupported)
}

func (m *mediaSession) Status(context.Context) (sink.ReceiverStatus, error) {
	st, err := m.t.client.GetStatus()
	if err != nil {
		return sink.ReceiverStatus{}, err
	}

	state := strings.ToUpper(strings.TrimSpace(st.PlayerState))
	m.t.mu.Lock()
	reason := synthesizeIdleReason(m.t.last, state, m.t.started, m.t.stopped)
	if state != stateIdle && state != "" {
		m.t.started = true
	}
	m.t.last = state
	m.t.mu.Unlock()

	return sink.ReceiverStatus{
		PlayerState: state,
		IdleReason:  reason,
		CurrentTime: float64(st.CurrentTime),
		Duration:    float64(st.Duration),
		Title:       st.MediaTitle,
		Volume:      float64(st.Volume),
		VolumeSet:   true,
		Muted:       st.Muted,
		MutedSet:    true,
	}, nil
}

// OnStatus is a no-op: the client has no push updates, so all state flows
// through Status polling.
func (m *mediaSession) OnStatus(func(sink.ReceiverStatus)) {}

// synthesizeIdleReason reconstructs the missing idle reason from observed
// state transitions. A receiver that was playing and went idle without a
// local stop finished its media.
func synthesizeIdleReason(prev, cur string, started, stopped bool) string {
	if cur != stateIdle {
		return ""
	}
	if !started || stopped {
		return ""
	}
	if prev == stateIdle {
		return ""
	}
	return "FINISHED"
}

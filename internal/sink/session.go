package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hearth/internal/logging"
)

const mediaContentType = "video/mp4"

// Options tunes session behavior.
type Options struct {
	// ConnectTimeout bounds the receiver handshake.
	ConnectTimeout time.Duration
	// PollInterval is the status polling cadence used as a backstop for
	// receivers that push updates unreliably.
	PollInterval time.Duration
}

// Load carries everything needed to start one media file on the receiver.
type Load struct {
	ItemID    string
	Title     string
	Thumbnail string
	MediaURL  string
	Duration  float64
}

// Session owns the single connection to a receiver and the normalized
// playback status derived from it. It survives receiver drop-offs: a failed
// transport resets the session to disconnected instead of wedging it.
type Session struct {
	factory TransportFactory
	logger  *slog.Logger
	opts    Options

	mu           sync.Mutex
	transport    Transport
	transportGen int
	media        MediaSession
	mediaGen     int
	device       Device
	status       PlaybackStatus
	pollStop     chan struct{}
	statusSubs   map[int]func(PlaybackStatus)
	finishSubs   map[int]func(string)
	nextSub      int
}

// NewSession builds a session around a transport factory.
func NewSession(factory TransportFactory, logger *slog.Logger, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Session{
		factory:    factory,
		logger:     logging.NewComponentLogger(logger, "sink-session"),
		opts:       opts,
		status:     PlaybackStatus{State: StateIdle},
		statusSubs: make(map[int]func(PlaybackStatus)),
		finishSubs: make(map[int]func(string)),
	}
}

// OnStatus registers a status observer and returns its unsubscribe function.
// Observers run outside the session lock.
func (s *Session) OnStatus(fn func(PlaybackStatus)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.statusSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.statusSubs, id)
	}
}

// OnMediaFinished registers an observer for the receiver finishing a file.
// The callback receives the queue item ID the media belonged to.
func (s *Session) OnMediaFinished(fn func(itemID string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.finishSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.finishSubs, id)
	}
}

// Connect establishes a connection to the device, silently tearing down any
// previous one. The handshake is bounded by the configured timeout.
func (s *Session) Connect(ctx context.Context, device Device) error {
	transport, err := s.factory(device)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	// The old connection's fate is not the caller's problem.
	s.teardown(false)

	connectCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	if err := transport.Connect(connectCtx); err != nil {
		_ = transport.Close(false)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrConnectTimeout, device.Name)
		}
		return fmt.Errorf("connect to %s: %w", device.Name, err)
	}

	s.mu.Lock()
	s.transportGen++
	gen := s.transportGen
	s.transport = transport
	s.device = device
	s.media = nil
	s.status = PlaybackStatus{Connected: true, DeviceName: device.Name, State: StateIdle}
	st := s.status
	s.mu.Unlock()

	transport.OnClose(func() { s.handleTransportGone(gen, nil) })
	transport.OnError(func(err error) { s.handleTransportGone(gen, err) })

	s.logger.Info("receiver connected",
		logging.String(logging.FieldDevice, device.Name),
		logging.String("host", device.Host))
	s.emitStatus(st)
	return nil
}

// Disconnect tears the connection down, stops playback, and resets status.
func (s *Session) Disconnect() {
	s.teardown(true)
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	s.logger.Info("receiver disconnected")
	s.emitStatus(st)
}

// Close releases the session. Equivalent to Disconnect.
func (s *Session) Close() {
	s.Disconnect()
}

// IsConnected reports whether a receiver connection is up.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// ConnectedDevice returns the device of the current connection.
func (s *Session) ConnectedDevice() (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device, s.transport != nil
}

// Status returns a snapshot of the normalized playback status.
func (s *Session) Status() PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LoadMedia launches the receiver app and loads one file with autoplay. Any
// previously loaded media is abandoned; its callbacks become stale and are
// ignored.
func (s *Session) LoadMedia(ctx context.Context, load Load) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return ErrNotConnected
	}

	media, err := transport.Launch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	item := MediaItem{
		URL:         load.MediaURL,
		ContentType: mediaContentType,
		Title:       load.Title,
		Thumbnail:   load.Thumbnail,
		Duration:    load.Duration,
		Autoplay:    true,
	}
	if err := media.Load(ctx, item); err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	s.mu.Lock()
	if s.transport != transport {
		// Connection replaced mid-load; the new owner wins.
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.mediaGen++
	gen := s.mediaGen
	s.media = media
	s.status.ItemID = load.ItemID
	s.status.Title = load.Title
	s.status.Thumbnail = load.Thumbnail
	s.status.Duration = load.Duration
	s.status.CurrentTime = 0
	s.status.State = StateBuffering
	st := s.status
	s.stopPollingLocked()
	stop := make(chan struct{})
	s.pollStop = stop
	s.mu.Unlock()

	media.OnStatus(func(rs ReceiverStatus) { s.handleReceiverStatus(gen, rs) })
	go s.poll(gen, media, stop)

	s.logger.Info("media loaded",
		logging.String(logging.FieldItemID, load.ItemID),
		logging.String("title", load.Title))
	s.emitStatus(st)
	return nil
}

// Play resumes paused playback.
func (s *Session) Play(ctx context.Context) error {
	return s.control(ctx, "play", MediaSession.Play)
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) error {
	return s.control(ctx, "pause", MediaSession.Pause)
}

// Stop stops playback on the receiver. The session stays connected.
func (s *Session) Stop(ctx context.Context) error {
	return s.control(ctx, "stop", MediaSession.Stop)
}

// Seek jumps to an absolute position in seconds.
func (s *Session) Seek(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	return s.control(ctx, "seek", func(m MediaSession, ctx context.Context) error {
		return m.Seek(ctx, seconds)
	})
}

// SetVolume sets the receiver volume, clamping the level to [0,1]. Volume is
// a connection-level control and works without loaded media.
func (s *Session) SetVolume(ctx context.Context, level float64) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return ErrNotConnected
	}
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	if err := transport.SetVolume(ctx, level); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}

	s.mu.Lock()
	if s.transport != transport {
		s.mu.Unlock()
		return nil
	}
	s.status.Volume = level
	st := s.status
	s.mu.Unlock()
	s.emitStatus(st)
	return nil
}

func (s *Session) control(ctx context.Context, op string, fn func(MediaSession, context.Context) error) error {
	s.mu.Lock()
	media := s.media
	gen := s.mediaGen
	connected := s.transport != nil
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if media == nil {
		return ErrNoActiveSession
	}
	if err := fn(media, ctx); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.expireSession(gen)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// teardown closes the current transport, invalidating all of its callbacks,
// and resets status without emitting.
func (s *Session) teardown(stopMedia bool) {
	s.mu.Lock()
	transport := s.transport
	s.transportGen++
	s.mediaGen++
	s.transport = nil
	s.media = nil
	s.device = Device{}
	s.stopPollingLocked()
	s.status = PlaybackStatus{State: StateIdle}
	s.mu.Unlock()
	if transport != nil {
		_ = transport.Close(stopMedia)
	}
}

// handleTransportGone reacts to close/error callbacks from a transport. Only
// the currently active transport may reset the session; callbacks from
// superseded connections are ignored.
func (s *Session) handleTransportGone(gen int, cause error) {
	s.mu.Lock()
	if gen != s.transportGen || s.transport == nil {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.media = nil
	s.mediaGen++
	s.device = Device{}
	s.stopPollingLocked()
	s.status = PlaybackStatus{State: StateIdle}
	st := s.status
	s.mu.Unlock()

	if cause != nil {
		s.logger.Warn("receiver connection failed", logging.Error(cause))
	} else {
		s.logger.Info("receiver closed connection")
	}
	s.emitStatus(st)
}

// expireSession resets local media state after the receiver dropped the
// session, so the next status event reflects reality.
func (s *Session) expireSession(gen int) {
	s.mu.Lock()
	if gen != s.mediaGen {
		s.mu.Unlock()
		return
	}
	s.media = nil
	s.mediaGen++
	s.stopPollingLocked()
	s.status.State = StateIdle
	s.status.ItemID = ""
	s.status.Thumbnail = ""
	s.status.CurrentTime = 0
	st := s.status
	s.mu.Unlock()

	s.logger.Warn("media session expired, resetting to idle")
	s.emitStatus(st)
}

func (s *Session) handleReceiverStatus(gen int, rs ReceiverStatus) {
	s.mu.Lock()
	if gen != s.mediaGen || s.media == nil {
		s.mu.Unlock()
		return
	}
	state := normalizeState(rs.PlayerState)
	s.status.State = state
	s.status.CurrentTime = rs.CurrentTime
	// Duration and title stick: receivers blank them between chunks.
	if rs.Duration > 0 {
		s.status.Duration = rs.Duration
	}
	if strings.TrimSpace(rs.Title) != "" {
		s.status.Title = rs.Title
	}
	if rs.VolumeSet {
		s.status.Volume = rs.Volume
	}
	if rs.MutedSet {
		s.status.Muted = rs.Muted
	}

	var finishedItem string
	if state == StateIdle {
		switch strings.ToUpper(strings.TrimSpace(rs.IdleReason)) {
		case idleReasonFinished:
			finishedItem = s.status.ItemID
			s.stopPollingLocked()
		case idleReasonError:
			s.stopPollingLocked()
		}
	}
	st := s.status
	var finishFns []func(string)
	if finishedItem != "" {
		finishFns = make([]func(string), 0, len(s.finishSubs))
		for _, fn := range s.finishSubs {
			finishFns = append(finishFns, fn)
		}
	}
	s.mu.Unlock()

	s.emitStatus(st)
	for _, fn := range finishFns {
		fn(finishedItem)
	}
}

func (s *Session) poll(gen int, media MediaSession, stop chan struct{}) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			rs, err := media.Status(ctx)
			cancel()
			if err != nil {
				if errors.Is(err, ErrSessionExpired) {
					s.expireSession(gen)
					return
				}
				s.logger.Debug("status poll failed", logging.Error(err))
				continue
			}
			s.handleReceiverStatus(gen, rs)
		}
	}
}

// stopPollingLocked closes the poll channel. Caller holds s.mu.
func (s *Session) stopPollingLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Session) emitStatus(st PlaybackStatus) {
	s.mu.Lock()
	fns := make([]func(PlaybackStatus), 0, len(s.statusSubs))
	for _, fn := range s.statusSubs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

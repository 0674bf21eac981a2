package sink_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hearth/internal/logging"
	"hearth/internal/sink"
)

type fakeMedia struct {
	mu          sync.Mutex
	status      sink.ReceiverStatus
	statusErr   error
	statusCalls int
	loads       []sink.MediaItem
	playErr     error
	pauseErr    error
	stopErr     error
	seekErr     error
	pauses      int
	plays       int
	stops       int
	seeks       []float64
	onStatus    func(sink.ReceiverStatus)
}

func (m *fakeMedia) Load(_ context.Context, item sink.MediaItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, item)
	return nil
}

func (m *fakeMedia) Play(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	return m.playErr
}

func (m *fakeMedia) Pause(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return m.pauseErr
}

func (m *fakeMedia) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return m.stopErr
}

func (m *fakeMedia) Seek(_ context.Context, seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, seconds)
	return m.seekErr
}

func (m *fakeMedia) Status(context.Context) (sink.ReceiverStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.statusErr != nil {
		return sink.ReceiverStatus{}, m.statusErr
	}
	return m.status, nil
}

func (m *fakeMedia) OnStatus(fn func(sink.ReceiverStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

func (m *fakeMedia) push(rs sink.ReceiverStatus) {
	m.mu.Lock()
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(rs)
	}
}

func (m *fakeMedia) setStatus(rs sink.ReceiverStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = rs
}

func (m *fakeMedia) setStatusErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErr = err
}

func (m *fakeMedia) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

type fakeTransport struct {
	mu           sync.Mutex
	media        *fakeMedia
	blockConnect bool
	connectErr   error
	launchErr    error
	volumes      []float64
	volumeErr    error
	closed       bool
	closedStop   bool
	onClose      func()
	onError      func(error)
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	if t.blockConnect {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.connectErr
}

func (t *fakeTransport) Launch(context.Context) (sink.MediaSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.launchErr != nil {
		return nil, t.launchErr
	}
	if t.media == nil {
		t.media = &fakeMedia{}
	}
	return t.media, nil
}

func (t *fakeTransport) SetVolume(_ context.Context, level float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volumes = append(t.volumes, level)
	return t.volumeErr
}

func (t *fakeTransport) Close(stopMedia bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closedStop = stopMedia
	return nil
}

func (t *fakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *fakeTransport) OnError(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = fn
}

func (t *fakeTransport) fireClose() {
	t.mu.Lock()
	fn := t.onClose
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTransport) fireError(err error) {
	t.mu.Lock()
	fn := t.onError
	t.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (t *fakeTransport) wasClosed() (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.closedStop
}

func (t *fakeTransport) sentVolumes() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.volumes))
	copy(out, t.volumes)
	return out
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []sink.PlaybackStatus
}

func (r *statusRecorder) record(st sink.PlaybackStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *statusRecorder) last() (sink.PlaybackStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return sink.PlaybackStatus{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func newTestSession(t *testing.T, factory sink.TransportFactory) *sink.Session {
	t.Helper()
	s := sink.NewSession(factory, logging.NewNop(), sink.Options{
		ConnectTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return s
}

func singleTransportFactory(tr *fakeTransport) sink.TransportFactory {
	return func(sink.Device) (sink.Transport, error) {
		return tr, nil
	}
}

func testDevice() sink.Device {
	return sink.Device{ID: "uuid-1", Name: "Living Room TV", Host: "192.168.1.40", Port: 8009}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustConnect(t *testing.T, s *sink.Session, tr *fakeTransport) {
	t.Helper()
	if err := s.Connect(context.Background(), testDevice()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = tr
}

func mustLoad(t *testing.T, s *sink.Session) {
	t.Helper()
	err := s.LoadMedia(context.Background(), sink.Load{
		ItemID:   "item-1",
		Title:    "Ocean Ambience",
		MediaURL: "http://192.168.1.10:7613/media/abc123.mp4",
		Duration: 2400,
	})
	if err != nil {
		t.Fatalf("LoadMedia: %v", err)
	}
}

func TestConnectReportsDeviceAndEmitsStatus(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(t, singleTransportFactory(tr))
	rec := &statusRecorder{}
	s.OnStatus(rec.record)

	mustConnect(t, s, tr)

	if !s.IsConnected() {
		t.Fatal("expected session to be connected")
	}
	dev, ok := s.ConnectedDevice()
	if !ok || dev.Name != "Living Room TV" {
		t.Fatalf("ConnectedDevice = %+v, %v", dev, ok)
	}
	st, ok := rec.last()
	if !ok {
		t.Fatal("expected a status event")
	}
	if !st.Connected || st.DeviceName != "Living Room TV" || st.State != sink.StateIdle {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestConnectTimesOut(t *testing.T) {
	tr := &fakeTransport{blockConnect: true}
	s := newTestSession(t, singleTransportFactory(tr))

	err := s.Connect(context.Background(), testDevice())
	if !errors.Is(err, sink.ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
	if s.IsConnected() {
		t.Fatal("session should not be connected after timeout")
	}
	if closed, _ := tr.wasClosed(); !closed {
		t.Fatal("timed-out transport should be closed")
	}
}

func TestConnectReplacesPreviousTransportSilently(t *testing.T) {
	first := &fakeTransport{}
	second := &fakeTransport{}
	transports := []*fakeTransport{first, second}
	i := 0
	factory := func(sink.Device) (sink.Transport, error) {
		tr := transports[i]
		i++
		return tr, nil
	}
	s := newTestSession(t, factory)

	mustConnect(t, s, first)
	mustConnect(t, s, second)

	if closed, stopMedia := first.wasClosed(); !closed || stopMedia {
		t.Fatalf("first transport closed=%v stopMedia=%v, want closed without stop", closed, stopMedia)
	}
	// A late close callback from the replaced transport must not touch the
	// new connection.
	first.fireClose()
	if !s.IsConnected() {
		t.Fatal("stale close callback disconnected the session")
	}
}

func TestLoadMediaRequiresConnection(t *testing.T) {
	s := newTestSession(t, singleTransportFactory(&fakeTransport{}))
	err := s.LoadMedia(context.Background(), sink.Load{ItemID: "x"})
	if !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestLoadMediaWrapsLaunchAndLoadErrors(t *testing.T) {
	tr := &fakeTransport{launchErr: errors.New("receiver busy")}
	s := newTestSession(t, singleTransportFactory(tr))
	mustConnect(t, s, tr)

	err := s.LoadMedia(context.Background(), sink.Load{ItemID: "x"})
	if !errors.Is(err, sink.ErrLaunchFailed) {
		t.Fatalf("expected ErrLaunchFailed, got %v", err)
	}
}

func TestLoadMediaStartsPollingAndNormalizesStatus(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	rec := &statusRecorder{}
	s.OnStatus(rec.record)
	mustConnect(t, s, tr)
	mustLoad(t, s)

	if len(tr.media.loads) != 1 {
		t.Fatalf("expected one load, got %d", len(tr.media.loads))
	}
	if got := tr.media.loads[0]; !got.Autoplay || got.ContentType != "video/mp4" {
		t.Fatalf("unexpected media item %+v", got)
	}

	tr.media.setStatus(sink.ReceiverStatus{PlayerState: "PLAYING", CurrentTime: 12.5, Duration: 2400})
	waitFor(t, "playing status", func() bool {
		st, ok := rec.last()
		return ok && st.State == sink.StatePlaying && st.CurrentTime > 12
	})

	st := s.Status()
	if st.ItemID != "item-1" || st.Title != "Ocean Ambience" || st.Duration != 2400 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestLoadMediaForwardsThumbnail(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	mustConnect(t, s, tr)

	err := s.LoadMedia(context.Background(), sink.Load{
		ItemID:    "item-1",
		Title:     "Ocean Ambience",
		Thumbnail: "https://i.ytimg.com/vi/abc12345678/hq720.jpg",
		MediaURL:  "http://192.168.1.10:7613/media/abc123.mp4",
		Duration:  2400,
	})
	if err != nil {
		t.Fatalf("LoadMedia: %v", err)
	}
	if got := tr.media.loads[0].Thumbnail; got != "https://i.ytimg.com/vi/abc12345678/hq720.jpg" {
		t.Fatalf("media item thumbnail = %q", got)
	}
	if st := s.Status(); st.Thumbnail != "https://i.ytimg.com/vi/abc12345678/hq720.jpg" {
		t.Fatalf("status thumbnail = %q", st.Thumbnail)
	}
}

func TestDurationAndTitleStickWhenReceiverBlanksThem(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.media.push(sink.ReceiverStatus{PlayerState: "PLAYING", CurrentTime: 30, Duration: 1800, Title: "Ocean Ambience"})
	tr.media.push(sink.ReceiverStatus{PlayerState: "BUFFERING", CurrentTime: 31})

	st := s.Status()
	if st.Duration != 1800 {
		t.Fatalf("duration not sticky: %+v", st)
	}
	if st.Title != "Ocean Ambience" {
		t.Fatalf("title not sticky: %+v", st)
	}
	if st.State != sink.StateBuffering {
		t.Fatalf("state = %q, want buffering", st.State)
	}
}

func TestVolumeAndMuteOnlyUpdateWhenReported(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.media.push(sink.ReceiverStatus{PlayerState: "PLAYING", Volume: 0.6, VolumeSet: true, Muted: true, MutedSet: true})
	tr.media.push(sink.ReceiverStatus{PlayerState: "PLAYING", CurrentTime: 5})

	st := s.Status()
	if st.Volume != 0.6 || !st.Muted {
		t.Fatalf("volume/mute should survive statuses that omit them: %+v", st)
	}
}

func TestIdleFinishedReportsMediaFinishedAndStopsPolling(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	var mu sync.Mutex
	var finished []string
	s.OnMediaFinished(func(itemID string) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, itemID)
	})
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.media.push(sink.ReceiverStatus{PlayerState: "IDLE", IdleReason: "FINISHED"})

	mu.Lock()
	got := append([]string(nil), finished...)
	mu.Unlock()
	if len(got) != 1 || got[0] != "item-1" {
		t.Fatalf("finished = %v, want [item-1]", got)
	}

	// Polling stops once the receiver reports FINISHED.
	time.Sleep(30 * time.Millisecond)
	before := tr.media.calls()
	time.Sleep(30 * time.Millisecond)
	if after := tr.media.calls(); after != before {
		t.Fatalf("polling continued after finish: %d -> %d", before, after)
	}
}

func TestIdleErrorStopsPollingWithoutFinish(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	finished := make(chan string, 1)
	s.OnMediaFinished(func(itemID string) { finished <- itemID })
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.media.push(sink.ReceiverStatus{PlayerState: "IDLE", IdleReason: "ERROR"})

	select {
	case id := <-finished:
		t.Fatalf("IDLE/ERROR must not report media finished, got %q", id)
	case <-time.After(30 * time.Millisecond):
	}
	time.Sleep(10 * time.Millisecond)
	before := tr.media.calls()
	time.Sleep(30 * time.Millisecond)
	if after := tr.media.calls(); after != before {
		t.Fatalf("polling continued after receiver error: %d -> %d", before, after)
	}
}

func TestControlsRequireConnectionAndMedia(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))

	if err := s.Pause(context.Background()); !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("Pause while disconnected = %v, want ErrNotConnected", err)
	}
	mustConnect(t, s, tr)
	if err := s.Pause(context.Background()); !errors.Is(err, sink.ErrNoActiveSession) {
		t.Fatalf("Pause without media = %v, want ErrNoActiveSession", err)
	}
	mustLoad(t, s)
	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.Seek(context.Background(), -3); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := tr.media.seeks; len(got) != 1 || got[0] != 0 {
		t.Fatalf("negative seek should clamp to zero, got %v", got)
	}
}

func TestSessionExpiredResetsToIdle(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	rec := &statusRecorder{}
	s.OnStatus(rec.record)
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.media.mu.Lock()
	tr.media.pauseErr = fmt.Errorf("receiver says: %w", sink.ErrSessionExpired)
	tr.media.mu.Unlock()

	err := s.Pause(context.Background())
	if !errors.Is(err, sink.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	st := s.Status()
	if st.State != sink.StateIdle || st.ItemID != "" {
		t.Fatalf("session not reset after expiry: %+v", st)
	}
	if !st.Connected {
		t.Fatal("expiry should not drop the receiver connection")
	}
	if err := s.Pause(context.Background()); !errors.Is(err, sink.ErrNoActiveSession) {
		t.Fatalf("Pause after expiry = %v, want ErrNoActiveSession", err)
	}
}

func TestSetVolumeClampsLevel(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(t, singleTransportFactory(tr))

	if err := s.SetVolume(context.Background(), 0.5); !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("SetVolume while disconnected = %v, want ErrNotConnected", err)
	}
	mustConnect(t, s, tr)
	if err := s.SetVolume(context.Background(), 1.7); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if err := s.SetVolume(context.Background(), -0.2); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if got := tr.sentVolumes(); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("volumes sent = %v, want [1 0]", got)
	}
	if st := s.Status(); st.Volume != 0 {
		t.Fatalf("status volume = %v, want 0", st.Volume)
	}
}

func TestDisconnectStopsMediaAndResets(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	rec := &statusRecorder{}
	s.OnStatus(rec.record)
	mustConnect(t, s, tr)
	mustLoad(t, s)

	s.Disconnect()

	if closed, stopMedia := tr.wasClosed(); !closed || !stopMedia {
		t.Fatalf("transport closed=%v stopMedia=%v, want close with stop", closed, stopMedia)
	}
	if s.IsConnected() {
		t.Fatal("session still connected after Disconnect")
	}
	st, _ := rec.last()
	if st.Connected || st.State != sink.StateIdle {
		t.Fatalf("unexpected final status %+v", st)
	}
}

func TestTransportErrorResetsSession(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	rec := &statusRecorder{}
	s.OnStatus(rec.record)
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.fireError(errors.New("broken pipe"))

	if s.IsConnected() {
		t.Fatal("session still connected after transport error")
	}
	st, _ := rec.last()
	if st.Connected {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := s.Pause(context.Background()); !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("Pause after transport error = %v, want ErrNotConnected", err)
	}
}

func TestStatusPollSessionExpiryResets(t *testing.T) {
	tr := &fakeTransport{media: &fakeMedia{}}
	s := newTestSession(t, singleTransportFactory(tr))
	mustConnect(t, s, tr)
	mustLoad(t, s)

	tr.media.setStatusErr(fmt.Errorf("poll: %w", sink.ErrSessionExpired))

	waitFor(t, "session reset from poll", func() bool {
		st := s.Status()
		return st.Connected && st.State == sink.StateIdle && st.ItemID == ""
	})
}

func TestOnStatusUnsubscribe(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(t, singleTransportFactory(tr))
	rec := &statusRecorder{}
	unsub := s.OnStatus(rec.record)
	mustConnect(t, s, tr)
	before := rec.count()
	unsub()
	s.Disconnect()
	if rec.count() != before {
		t.Fatal("unsubscribed observer still received events")
	}
}

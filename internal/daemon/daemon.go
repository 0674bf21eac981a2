package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"hearth/internal/config"
	"hearth/internal/curator"
	"hearth/internal/deps"
	"hearth/internal/history"
	"hearth/internal/logging"
	"hearth/internal/media"
	"hearth/internal/queue"
	"hearth/internal/sink"
)

// QueueManager is the slice of the queue manager the daemon drives.
type QueueManager interface {
	Items() []queue.Item
	Get(id string) (queue.Item, bool)
	Add(ctx context.Context, video media.Video, origin queue.Origin, concept string) (queue.Item, error)
	Remove(id string) error
	Move(id string, newIndex int) error
	ClearPlayed()
	Play(ctx context.Context, id string) error
	PlayNext(ctx context.Context) error
	ActiveCount() int
	HandleMediaFinished(itemID string)
	HandleConnectionChange(connected bool)
}

// Playback is the receiver session surface the daemon exposes over the API.
type Playback interface {
	Connect(ctx context.Context, device sink.Device) error
	Disconnect()
	IsConnected() bool
	ConnectedDevice() (sink.Device, bool)
	Status() sink.PlaybackStatus
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, level float64) error
	OnStatus(fn func(sink.PlaybackStatus)) func()
	OnMediaFinished(fn func(itemID string)) func()
}

// Curation is the curator surface the daemon exposes. May be absent.
type Curation interface {
	Start()
	Stop()
	Trigger()
	Status() curator.Status
}

// HistoryStore answers play-history queries. May be absent.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Clear(ctx context.Context) error
}

// VideoResolver turns a user-supplied URL into full video metadata.
type VideoResolver interface {
	VideoInfo(ctx context.Context, url string) (media.Video, error)
}

// Notifier announces playback events. May be absent.
type Notifier interface {
	NotifyNowPlaying(ctx context.Context, title, device string) error
	TestNotification(ctx context.Context) error
}

// Deps bundles the daemon's collaborators.
type Deps struct {
	Queue    QueueManager
	Playback Playback
	Resolver VideoResolver
	Curation Curation
	History  HistoryStore
	Notifier Notifier
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    QueueManager
	playback Playback
	resolver VideoResolver
	curation Curation
	history  HistoryStore
	notifier Notifier

	api   *apiServer
	media *mediaServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	unsubs  []func()

	mu        sync.Mutex
	announced string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                `json:"running"`
	Queue        QueueSummary        `json:"queue"`
	Playback     sink.PlaybackStatus `json:"playback"`
	Curation     *curator.Status     `json:"curation,omitempty"`
	Dependencies []deps.Status       `json:"dependencies"`
	LockFilePath string              `json:"lockFilePath"`
}

// QueueSummary aggregates queue occupancy for the status endpoint.
type QueueSummary struct {
	Total    int                  `json:"total"`
	Active   int                  `json:"active"`
	ByStatus map[queue.Status]int `json:"byStatus"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if deps.Queue == nil || deps.Playback == nil || deps.Resolver == nil {
		return nil, errors.New("daemon requires queue, playback, and resolver")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "hearthd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		queue:    deps.Queue,
		playback: deps.Playback,
		resolver: deps.Resolver,
		curation: deps.Curation,
		history:  deps.History,
		notifier: deps.Notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	d.media = newMediaServer(cfg.Paths.MediaBind, cfg.Paths.DownloadDir, logger)
	return d, nil
}

// Start acquires the daemon lock, wires the receiver callbacks into the
// queue, and launches the HTTP servers and the curation loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hearth daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.unsubs = append(d.unsubs,
		d.playback.OnMediaFinished(d.queue.HandleMediaFinished),
		d.playback.OnStatus(d.handlePlaybackStatus),
	)

	if err := d.media.start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start media server: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.media.stop()
		d.abortStart()
		return fmt.Errorf("start api server: %w", err)
	}
	if d.curation != nil && d.cfg.Curation.Enabled {
		d.curation.Start()
	}

	for _, dep := range deps.CheckBinaries(deps.Requirements(d.cfg)) {
		if dep.Available {
			continue
		}
		if dep.Optional {
			d.logger.Warn("optional dependency missing", logging.String("name", dep.Name), logging.String("detail", dep.Detail))
		} else {
			d.logger.Error("required dependency missing", logging.String("name", dep.Name), logging.String("detail", dep.Detail))
		}
	}

	d.running.Store(true)
	d.logger.Info("hearth daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) abortStart() {
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.unsubs = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.curation != nil {
		d.curation.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.media.stop()
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.unsubs = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("hearth daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// APIAddr returns the bound API listener address, or "" before Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// MediaAddr returns the bound media listener address, or "" before Start.
func (d *Daemon) MediaAddr() string {
	return d.media.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	items := d.queue.Items()
	summary := QueueSummary{
		Total:    len(items),
		ByStatus: make(map[queue.Status]int, len(queue.AllStatuses())),
	}
	for _, item := range items {
		summary.ByStatus[item.Status]++
		if item.Status.IsActive() {
			summary.Active++
		}
	}

	st := Status{
		Running:      d.running.Load(),
		Queue:        summary,
		Playback:     d.playback.Status(),
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
		LockFilePath: d.lockPath,
	}
	if d.curation != nil {
		cs := d.curation.Status()
		st.Curation = &cs
	}
	return st
}

// handlePlaybackStatus feeds receiver status into the queue and announces
// new playbacks once per item.
func (d *Daemon) handlePlaybackStatus(st sink.PlaybackStatus) {
	d.queue.HandleConnectionChange(st.Connected)

	if st.State != sink.StatePlaying || st.ItemID == "" {
		return
	}
	d.mu.Lock()
	if st.ItemID == d.announced {
		d.mu.Unlock()
		return
	}
	d.announced = st.ItemID
	d.mu.Unlock()

	if d.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.notifier.NotifyNowPlaying(ctx, st.Title, st.DeviceName); err != nil {
			d.logger.Debug("now-playing notification failed", logging.Error(err))
		}
	}()
}

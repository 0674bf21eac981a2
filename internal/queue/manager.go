package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearth/internal/logging"
	"hearth/internal/media"
)

// Notifier receives queue failure events. Implementations must not call back
// into the manager.
type Notifier interface {
	QueueError(ctx context.Context, title string, err error)
}

// Options tunes manager behavior. StreamURL is required; everything else has
// sensible defaults.
type Options struct {
	// StreamURL maps a media file stem to the URL the receiver streams it from.
	StreamURL func(stem string) string
	// RetainPlayed is how many finished items stay visible in the queue.
	RetainPlayed int
	// CleanupGrace is how long media files outlive their playback before
	// deletion. The delay keeps the receiver's buffer fed through the end
	// of the file.
	CleanupGrace time.Duration
	// AutoplaySettle delays auto-play after a receiver reconnect so the
	// session can finish its first status exchange.
	AutoplaySettle time.Duration
}

const defaultRetainPlayed = 3

// Manager owns the playback queue. All mutations flow through it, and every
// status change follows the transition table in transitions.go.
type Manager struct {
	fetcher  Fetcher
	player   Player
	history  HistoryRecorder
	notifier Notifier
	logger   *slog.Logger
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	items        []*Item
	downloads    map[string]*download
	cleanups     map[string]*time.Timer
	subs         map[int]func()
	nextSub      int
	autoPlayBusy bool
	wasConnected bool
	closed       bool
}

type download struct {
	handle Handle
	done   chan struct{}
}

type finishedPlayback struct {
	videoID string
	title   string
}

// NewManager wires a queue manager from its collaborators. history and
// notifier may be nil.
func NewManager(fetcher Fetcher, player Player, history HistoryRecorder, notifier Notifier, logger *slog.Logger, opts Options) (*Manager, error) {
	if fetcher == nil || player == nil {
		return nil, errors.New("queue manager requires fetcher and player")
	}
	if opts.StreamURL == nil {
		return nil, errors.New("queue manager requires a stream URL resolver")
	}
	if opts.RetainPlayed <= 0 {
		opts.RetainPlayed = defaultRetainPlayed
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		fetcher:   fetcher,
		player:    player,
		history:   history,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "queue"),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		downloads: make(map[string]*download),
		cleanups:  make(map[string]*time.Timer),
		subs:      make(map[int]func()),
	}, nil
}

// Close cancels downloads and pending cleanups. The manager accepts no new
// work afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	handles := make([]Handle, 0, len(m.downloads))
	for _, dl := range m.downloads {
		if dl.handle != nil {
			handles = append(handles, dl.handle)
		}
	}
	timers := make([]*time.Timer, 0, len(m.cleanups))
	for _, timer := range m.cleanups {
		timers = append(timers, timer)
	}
	m.mu.Unlock()

	m.cancel()
	for _, handle := range handles {
		handle.Cancel()
	}
	for _, timer := range timers {
		timer.Stop()
	}
}

// Subscribe registers a queue-updated observer and returns its unsubscribe
// function. Observers run outside the manager lock and may call back in.
func (m *Manager) Subscribe(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Add appends a video to the queue and begins fetching it.
func (m *Manager) Add(ctx context.Context, video media.Video, origin Origin, concept string) (Item, error) {
	if strings.TrimSpace(video.ID) == "" {
		return Item{}, errors.New("video id required")
	}
	if strings.TrimSpace(video.URL) == "" {
		video.URL = media.WatchURL(video.ID)
	}
	item := &Item{
		ID:      uuid.NewString(),
		Video:   video,
		Status:  StatusPending,
		AddedAt: time.Now().UTC(),
		Origin:  origin,
		Concept: strings.TrimSpace(concept),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Item{}, errors.New("queue manager closed")
	}
	m.items = append(m.items, item)
	snapshot := item.clone()
	m.mu.Unlock()

	m.logger.Info("video queued",
		logging.String(logging.FieldItemID, snapshot.ID),
		logging.String(logging.FieldVideoID, video.ID),
		logging.String("title", video.Title),
		logging.String("origin", string(origin)))
	m.emit()
	m.startDownload(snapshot.ID)
	return snapshot, nil
}

// Items returns defensive copies of every queue entry in order.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item.clone())
	}
	return out
}

// Get returns a copy of one item.
func (m *Manager) Get(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item := m.find(id); item != nil {
		return item.clone(), true
	}
	return Item{}, false
}

// ActiveCount reports how many items still occupy queue capacity.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.Status.IsActive() {
			count++
		}
	}
	return count
}

// Remove drops an item from the queue, cancelling its download and stopping
// playback when necessary. Cached media files are deleted.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	idx := -1
	for i, item := range m.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	item := m.items[idx]
	wasPlaying := item.Status == StatusPlaying
	videoID := item.Video.ID
	var handle Handle
	if dl := m.downloads[id]; dl != nil {
		handle = dl.handle
		delete(m.downloads, id)
	}
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	m.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if wasPlaying {
		if err := m.player.Stop(m.ctx); err != nil {
			m.logger.Warn("stop after remove failed", logging.Error(err))
		}
	}
	m.cancelCleanup(videoID)
	if err := m.fetcher.Delete(videoID); err != nil {
		m.logger.Warn("delete media failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
	}
	m.emit()
	return nil
}

// Move repositions an item. Out-of-range indexes clamp to the queue bounds.
func (m *Manager) Move(id string, newIndex int) error {
	m.mu.Lock()
	idx := -1
	for i, item := range m.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(m.items)-1 {
		newIndex = len(m.items) - 1
	}
	if newIndex == idx {
		m.mu.Unlock()
		return nil
	}
	item := m.items[idx]
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	rest := append([]*Item{}, m.items[newIndex:]...)
	m.items = append(m.items[:newIndex], item)
	m.items = append(m.items, rest...)
	m.mu.Unlock()
	m.emit()
	return nil
}

// ClearPlayed removes every played item and deletes its cached media.
func (m *Manager) ClearPlayed() {
	m.mu.Lock()
	kept := m.items[:0]
	var removed []string
	for _, item := range m.items {
		if item.Status == StatusPlayed {
			removed = append(removed, item.Video.ID)
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	m.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	for _, videoID := range removed {
		m.cancelCleanup(videoID)
		if err := m.fetcher.Delete(videoID); err != nil {
			m.logger.Warn("delete media failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		}
	}
	m.emit()
}

// Play starts playback of a ready item, superseding whatever is on the
// receiver.
func (m *Manager) Play(ctx context.Context, id string) error {
	m.mu.Lock()
	item := m.find(id)
	if item == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if item.Status != StatusReady {
		status := item.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: item is %s", ErrNotReady, status)
	}
	if !m.player.IsConnected() {
		m.mu.Unlock()
		return ErrNotConnected
	}

	var superseded []finishedPlayback
	for _, other := range m.items {
		if other.ID != id && other.Status == StatusPlaying {
			superseded = append(superseded, m.markPlayedLocked(other, EventSuperseded))
		}
	}
	item.CurrentChunk = 0
	// Claim the receiver before the load goes out, so a concurrent
	// auto-play pass sees a playing item instead of an idle queue.
	_ = applyTransition(item, EventPlaybackStarted)
	req := m.loadRequestLocked(item)
	title := item.Video.Title
	m.mu.Unlock()

	m.settlePlayed(superseded)
	m.emit()

	if err := m.player.LoadMedia(ctx, req); err != nil {
		m.mu.Lock()
		if current := m.find(id); current != nil && current.Status == StatusPlaying {
			_ = applyTransition(current, EventLoadFailed)
		}
		m.mu.Unlock()
		m.emit()
		return err
	}

	m.logger.Info("playback started",
		logging.String(logging.FieldItemID, id),
		logging.String("title", title))
	m.emit()
	return nil
}

// PlayNext plays the first ready item. When nothing is ready it waits for the
// first in-flight download, then plays it. With an idle queue it is a no-op.
func (m *Manager) PlayNext(ctx context.Context) error {
	m.mu.Lock()
	var readyID, downloadingID string
	var done chan struct{}
	for _, item := range m.items {
		switch item.Status {
		case StatusReady:
			if readyID == "" {
				readyID = item.ID
			}
		case StatusPending, StatusDownloading:
			if downloadingID == "" {
				downloadingID = item.ID
				if dl := m.downloads[item.ID]; dl != nil {
					done = dl.done
				}
			}
		}
	}
	m.mu.Unlock()

	if readyID != "" {
		return m.Play(ctx, readyID)
	}
	if downloadingID == "" || done == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	m.mu.Lock()
	item := m.find(downloadingID)
	playable := item != nil && item.Status == StatusReady
	m.mu.Unlock()
	if playable {
		return m.Play(ctx, downloadingID)
	}
	return nil
}

// HandleMediaFinished reacts to the receiver reporting the current file
// finished. Chunked items advance to the next chunk; otherwise the item is
// marked played and the next one starts.
func (m *Manager) HandleMediaFinished(itemID string) {
	m.mu.Lock()
	item := m.find(itemID)
	if item == nil || item.Status != StatusPlaying {
		m.mu.Unlock()
		return
	}
	if len(item.Chunks) > 0 && item.CurrentChunk < len(item.Chunks)-1 {
		item.CurrentChunk++
		chunk := item.CurrentChunk
		req := m.loadRequestLocked(item)
		m.mu.Unlock()

		if err := m.player.LoadMedia(m.ctx, req); err != nil {
			// A failed chunk advance counts as watched, not broken.
			m.logger.Warn("chunk advance failed",
				logging.String(logging.FieldItemID, itemID),
				logging.Int("chunk", chunk),
				logging.Error(err))
			m.degradeToPlayed(itemID)
			if err := m.PlayNext(m.ctx); err != nil {
				m.logger.Warn("play next after degraded item failed", logging.Error(err))
			}
			return
		}
		m.logger.Debug("advanced to next chunk",
			logging.String(logging.FieldItemID, itemID),
			logging.Int("chunk", chunk))
		m.emit()
		return
	}

	finished := m.markPlayedLocked(item, EventPlaybackFinished)
	m.mu.Unlock()
	m.settlePlayed([]finishedPlayback{finished})
	if err := m.PlayNext(m.ctx); err != nil {
		m.logger.Warn("play next failed", logging.Error(err))
	}
}

// HandleConnectionChange reacts to receiver connectivity. A fresh connection
// triggers auto-play after a settle delay.
func (m *Manager) HandleConnectionChange(connected bool) {
	m.mu.Lock()
	was := m.wasConnected
	m.wasConnected = connected
	m.mu.Unlock()

	if connected && !was {
		time.AfterFunc(m.opts.AutoplaySettle, m.tryAutoPlay)
	}
}

func (m *Manager) startDownload(id string) {
	m.mu.Lock()
	item := m.find(id)
	if item == nil || item.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	_ = applyTransition(item, EventFetchStarted)
	videoID := item.Video.ID
	url := item.Video.URL
	duration := item.Video.Duration
	// Register the completion channel before the fetch starts, so waiters
	// like PlayNext can latch on while Download is still in flight.
	done := make(chan struct{})
	m.downloads[id] = &download{done: done}
	m.mu.Unlock()
	m.emit()

	handle, err := m.fetcher.Download(m.ctx, videoID, url, func(p float64) {
		m.updateProgress(id, p)
	})
	if err != nil {
		m.mu.Lock()
		if dl := m.downloads[id]; dl != nil && dl.done == done {
			delete(m.downloads, id)
		}
		m.mu.Unlock()
		close(done)
		m.failItem(id, err)
		return
	}

	m.mu.Lock()
	dl := m.downloads[id]
	if dl == nil || dl.done != done || m.closed {
		// Removed or shut down while the fetch was starting.
		m.mu.Unlock()
		handle.Cancel()
		close(done)
		return
	}
	dl.handle = handle
	m.mu.Unlock()

	go func() {
		defer close(done)
		err := handle.Wait(m.ctx)
		m.finishDownload(id, duration, err)
	}()
}

func (m *Manager) finishDownload(id string, duration float64, waitErr error) {
	m.mu.Lock()
	delete(m.downloads, id)
	item := m.find(id)
	if item == nil || item.Status != StatusDownloading {
		m.mu.Unlock()
		return
	}
	videoID := item.Video.ID
	m.mu.Unlock()

	if waitErr != nil {
		m.failItem(id, waitErr)
		return
	}

	chunks, err := m.fetcher.Split(m.ctx, videoID, duration)
	if err != nil {
		// Splitting is best effort; a long video still plays whole.
		m.logger.Warn("split failed, playing whole file",
			logging.String(logging.FieldVideoID, videoID),
			logging.Error(err))
		chunks = nil
	}

	m.mu.Lock()
	item = m.find(id)
	if item == nil || item.Status != StatusDownloading {
		m.mu.Unlock()
		return
	}
	item.Chunks = chunks
	item.Progress = 100
	_ = applyTransition(item, EventFetchCompleted)
	m.mu.Unlock()

	m.logger.Info("download ready",
		logging.String(logging.FieldItemID, id),
		logging.String(logging.FieldVideoID, videoID),
		logging.Int("chunks", len(chunks)))
	m.emit()
	m.tryAutoPlay()
}

func (m *Manager) failItem(id string, cause error) {
	m.mu.Lock()
	item := m.find(id)
	if item == nil || item.Status != StatusDownloading {
		m.mu.Unlock()
		return
	}
	_ = applyTransition(item, EventFetchFailed)
	item.Error = cause.Error()
	title := item.Video.Title
	m.mu.Unlock()

	m.logger.Error("download failed",
		logging.String(logging.FieldItemID, id),
		logging.String("title", title),
		logging.Error(cause))
	if m.notifier != nil {
		m.notifier.QueueError(m.ctx, title, cause)
	}
	m.emit()
}

func (m *Manager) updateProgress(id string, progress float64) {
	if progress > 100 {
		progress = 100
	}
	m.mu.Lock()
	item := m.find(id)
	if item == nil || item.Status != StatusDownloading || progress <= item.Progress {
		m.mu.Unlock()
		return
	}
	changed := int(progress) > int(item.Progress)
	item.Progress = progress
	m.mu.Unlock()
	if changed {
		m.emit()
	}
}

func (m *Manager) tryAutoPlay() {
	m.mu.Lock()
	if m.closed || m.autoPlayBusy || !m.player.IsConnected() || !m.player.IsIdle() {
		m.mu.Unlock()
		return
	}
	var readyID string
	for _, item := range m.items {
		if item.Status == StatusPlaying {
			m.mu.Unlock()
			return
		}
		if readyID == "" && item.Status == StatusReady {
			readyID = item.ID
		}
	}
	if readyID == "" {
		m.mu.Unlock()
		return
	}
	m.autoPlayBusy = true
	m.mu.Unlock()

	err := m.Play(m.ctx, readyID)

	m.mu.Lock()
	m.autoPlayBusy = false
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("auto-play failed", logging.String(logging.FieldItemID, readyID), logging.Error(err))
	}
}

func (m *Manager) degradeToPlayed(id string) {
	m.mu.Lock()
	item := m.find(id)
	if item == nil || item.Status != StatusPlaying {
		m.mu.Unlock()
		return
	}
	finished := m.markPlayedLocked(item, EventPlaybackDegraded)
	m.mu.Unlock()
	m.settlePlayed([]finishedPlayback{finished})
}

// markPlayedLocked transitions a playing item to played. Callers hold m.mu
// and pass the result to settlePlayed after unlocking.
func (m *Manager) markPlayedLocked(item *Item, event Event) finishedPlayback {
	_ = applyTransition(item, event)
	return finishedPlayback{videoID: item.Video.ID, title: item.Video.Title}
}

// settlePlayed performs the post-lock bookkeeping for items that just
// finished: history, deferred file cleanup, and retention trimming.
func (m *Manager) settlePlayed(finished []finishedPlayback) {
	if len(finished) == 0 {
		return
	}
	for _, f := range finished {
		m.scheduleCleanup(f.videoID)
		if m.history != nil {
			if err := m.history.RecordPlayed(m.ctx, f.videoID, f.title); err != nil {
				m.logger.Warn("record history failed",
					logging.String(logging.FieldVideoID, f.videoID),
					logging.Error(err))
			}
		}
	}
	m.trimPlayed()
	m.emit()
}

// trimPlayed keeps only the most recently added played items in the queue.
func (m *Manager) trimPlayed() {
	m.mu.Lock()
	var played []*Item
	for _, item := range m.items {
		if item.Status == StatusPlayed {
			played = append(played, item)
		}
	}
	if len(played) <= m.opts.RetainPlayed {
		m.mu.Unlock()
		return
	}
	sort.Slice(played, func(i, j int) bool {
		return played[i].AddedAt.After(played[j].AddedAt)
	})
	drop := make(map[string]string, len(played)-m.opts.RetainPlayed)
	for _, item := range played[m.opts.RetainPlayed:] {
		drop[item.ID] = item.Video.ID
	}
	kept := m.items[:0]
	for _, item := range m.items {
		if _, gone := drop[item.ID]; gone {
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	m.mu.Unlock()

	for _, videoID := range drop {
		m.cancelCleanup(videoID)
		if err := m.fetcher.Delete(videoID); err != nil {
			m.logger.Warn("delete media failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		}
	}
}

func (m *Manager) scheduleCleanup(videoID string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, exists := m.cleanups[videoID]; exists {
		m.mu.Unlock()
		return
	}
	timer := time.AfterFunc(m.opts.CleanupGrace, func() {
		m.mu.Lock()
		delete(m.cleanups, videoID)
		m.mu.Unlock()
		if err := m.fetcher.Delete(videoID); err != nil {
			m.logger.Warn("deferred delete failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		}
	})
	m.cleanups[videoID] = timer
	m.mu.Unlock()
}

func (m *Manager) cancelCleanup(videoID string) {
	m.mu.Lock()
	timer, ok := m.cleanups[videoID]
	if ok {
		delete(m.cleanups, videoID)
	}
	m.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

func (m *Manager) loadRequestLocked(item *Item) LoadRequest {
	duration := item.Video.Duration
	title := item.Video.Title
	if len(item.Chunks) > 0 {
		// Chunk durations are unknown until the receiver reports them.
		duration = 0
		title = fmt.Sprintf("%s (%d/%d)", title, item.CurrentChunk+1, len(item.Chunks))
	}
	return LoadRequest{
		ItemID:    item.ID,
		Title:     title,
		Thumbnail: item.Video.Thumbnail,
		MediaURL:  m.opts.StreamURL(item.FileStem()),
		Duration:  duration,
	}
}

func (m *Manager) find(id string) *Item {
	for _, item := range m.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (m *Manager) emit() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

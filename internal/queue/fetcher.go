package queue

import "context"

// Fetcher downloads, deletes, and splits media files for queue items. The
// queue never touches the filesystem directly.
type Fetcher interface {
	// Download starts fetching the video and reports progress in the range
	// [0,100] through onProgress. The returned handle outlives the call.
	Download(ctx context.Context, videoID, url string, onProgress func(float64)) (Handle, error)
	// Delete removes the cached media for a video, including any chunk
	// files. Deleting media that is already gone is not an error.
	Delete(videoID string) error
	// Split divides a downloaded video into receiver-sized chunks and
	// returns their file stems. It returns (nil, nil) when the video is
	// short enough to play whole.
	Split(ctx context.Context, videoID string, durationSeconds float64) ([]string, error)
}

// Handle tracks one in-flight download.
type Handle interface {
	// Cancel aborts the download. Safe to call more than once.
	Cancel()
	// Wait blocks until the download finishes or ctx is done.
	Wait(ctx context.Context) error
}

// Player is the playback surface the queue drives. It is implemented by the
// sink session.
type Player interface {
	IsConnected() bool
	// IsIdle reports whether the receiver has nothing playing, paused, or
	// buffering. Auto-play only claims an idle receiver.
	IsIdle() bool
	LoadMedia(ctx context.Context, req LoadRequest) error
	Stop(ctx context.Context) error
}

// LoadRequest carries everything the receiver needs to start one media file.
type LoadRequest struct {
	ItemID    string
	Title     string
	Thumbnail string
	MediaURL  string
	Duration  float64
}

// HistoryRecorder persists finished playbacks.
type HistoryRecorder interface {
	RecordPlayed(ctx context.Context, videoID, title string) error
}

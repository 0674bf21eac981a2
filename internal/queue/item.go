package queue

import (
	"strings"
	"time"

	"hearth/internal/media"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusReady       Status = "ready"
	StatusPlaying     Status = "playing"
	StatusPlayed      Status = "played"
	StatusError       Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusReady,
	StatusPlaying,
	StatusPlayed,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusPlayed || s == StatusError
}

// IsActive reports whether an item still occupies queue capacity.
func (s Status) IsActive() bool {
	return !s.IsTerminal()
}

// Origin records how an item entered the queue.
type Origin string

const (
	OriginManual  Origin = "manual"
	OriginCurated Origin = "curated"
)

// Item represents one entry in the playback queue.
type Item struct {
	ID       string      `json:"id"`
	Video    media.Video `json:"video"`
	Status   Status      `json:"status"`
	Progress float64     `json:"progress"`
	Error    string      `json:"error,omitempty"`
	AddedAt  time.Time   `json:"addedAt"`
	Origin   Origin      `json:"origin"`
	Concept  string      `json:"concept,omitempty"`
	// Chunks holds the file stems the source was split into when it
	// exceeded the chunk threshold. Empty for unsplit items.
	Chunks []string `json:"chunks,omitempty"`
	// CurrentChunk is the index into Chunks currently loaded on the
	// receiver. Only meaningful while the item is playing.
	CurrentChunk int `json:"currentChunk"`
}

// clone returns a defensive copy safe to hand to callers.
func (i *Item) clone() Item {
	cp := *i
	if len(i.Chunks) > 0 {
		cp.Chunks = make([]string, len(i.Chunks))
		copy(cp.Chunks, i.Chunks)
	}
	return cp
}

// FileStem returns the stem of the media file the receiver should stream for
// the item's current position.
func (i *Item) FileStem() string {
	if len(i.Chunks) > 0 && i.CurrentChunk >= 0 && i.CurrentChunk < len(i.Chunks) {
		return i.Chunks[i.CurrentChunk]
	}
	return i.Video.ID
}

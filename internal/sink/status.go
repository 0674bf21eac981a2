package sink

import "strings"

// PlayerState is the normalized playback state exposed to consumers.
type PlayerState string

const (
	StateIdle      PlayerState = "idle"
	StatePlaying   PlayerState = "playing"
	StatePaused    PlayerState = "paused"
	StateBuffering PlayerState = "buffering"
)

const (
	idleReasonFinished = "FINISHED"
	idleReasonError    = "ERROR"
)

// PlaybackStatus is the session's normalized view of the receiver. It is a
// value snapshot; consumers never observe partial updates.
type PlaybackStatus struct {
	Connected   bool        `json:"connected"`
	DeviceName  string      `json:"deviceName,omitempty"`
	State       PlayerState `json:"state"`
	CurrentTime float64     `json:"currentTime"`
	Duration    float64     `json:"duration"`
	Title       string      `json:"title,omitempty"`
	Thumbnail   string      `json:"thumbnail,omitempty"`
	Volume      float64     `json:"volume"`
	Muted       bool        `json:"muted"`
	// ItemID is the queue item whose media is loaded, if any.
	ItemID string `json:"itemId,omitempty"`
}

func normalizeState(raw string) PlayerState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PLAYING":
		return StatePlaying
	case "PAUSED":
		return StatePaused
	case "BUFFERING", "LOADING":
		return StateBuffering
	case "IDLE", "":
		return StateIdle
	default:
		return StateIdle
	}
}

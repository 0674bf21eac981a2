package queue

import "fmt"

// Event names a lifecycle trigger consumed by the queue state machine.
type Event string

const (
	EventFetchStarted     Event = "fetch-started"
	EventFetchCompleted   Event = "fetch-completed"
	EventFetchFailed      Event = "fetch-failed"
	EventPlaybackStarted  Event = "playback-started"
	EventPlaybackFinished Event = "playback-finished"
	// EventSuperseded fires when another item starts playing while this one
	// was active on the receiver.
	EventSuperseded Event = "superseded"
	// EventPlaybackDegraded fires when a chunk advance fails; the item is
	// considered watched rather than broken.
	EventPlaybackDegraded Event = "playback-degraded"
	// EventLoadFailed fires when the receiver rejects the initial load of an
	// item that was just claimed for playback; the item returns to ready.
	EventLoadFailed Event = "load-failed"
)

type transitionKey struct {
	from  Status
	event Event
}

// transitions is the single source of truth for status changes. Anything not
// listed here is an invalid transition.
var transitions = map[transitionKey]Status{
	{StatusPending, EventFetchStarted}:       StatusDownloading,
	{StatusDownloading, EventFetchCompleted}: StatusReady,
	{StatusDownloading, EventFetchFailed}:    StatusError,
	{StatusReady, EventPlaybackStarted}:      StatusPlaying,
	{StatusPlaying, EventPlaybackFinished}:   StatusPlayed,
	{StatusPlaying, EventSuperseded}:         StatusPlayed,
	{StatusPlaying, EventPlaybackDegraded}:   StatusPlayed,
	{StatusPlaying, EventLoadFailed}:         StatusReady,
}

// NextStatus resolves the status an item moves to when event fires.
func NextStatus(from Status, event Event) (Status, bool) {
	to, ok := transitions[transitionKey{from, event}]
	return to, ok
}

// applyTransition mutates the item status or reports the invalid pair.
func applyTransition(item *Item, event Event) error {
	to, ok := NextStatus(item.Status, event)
	if !ok {
		return fmt.Errorf("invalid transition: %s cannot handle %s", item.Status, event)
	}
	item.Status = to
	return nil
}

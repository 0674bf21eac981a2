// Package queue implements the in-memory playback queue at the center of the
// daemon. The Manager is the sole mutator of queue state: it drives downloads
// through a Fetcher, playback through a Player, and records finished items in
// a HistoryRecorder. Every status change follows the explicit transition
// table, so illegal moves fail loudly instead of corrupting state.
package queue

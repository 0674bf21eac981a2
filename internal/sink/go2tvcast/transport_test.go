package go2tvcast

import "testing"

func TestSynthesizeIdleReason(t *testing.T) {
	tests := []struct {
		name    string
		prev    string
		cur     string
		started bool
		stopped bool
		want    string
	}{
		{name: "playing to idle after start", prev: "PLAYING", cur: "IDLE", started: true, want: "FINISHED"},
		{name: "buffering to idle after start", prev: "BUFFERING", cur: "IDLE", started: true, want: "FINISHED"},
		{name: "idle before media ever started", prev: "", cur: "IDLE", want: ""},
		{name: "idle after local stop", prev: "PLAYING", cur: "IDLE", started: true, stopped: true, want: ""},
		{name: "idle repeated", prev: "IDLE", cur: "IDLE", started: true, want: ""},
		{name: "still playing", prev: "PLAYING", cur: "PLAYING", started: true, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := synthesizeIdleReason(tc.prev, tc.cur, tc.started, tc.stopped); got != tc.want {
				t.Fatalf("synthesizeIdleReason(%q, %q, %v, %v) = %q, want %q",
					tc.prev, tc.cur, tc.started, tc.stopped, got, tc.want)
			}
		})
	}
}

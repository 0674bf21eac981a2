package main

import (
	"testing"

	"hearth/internal/queue"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "-"},
		{-5, "-"},
		{59, "0:59"},
		{90, "1:30"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{7322.9, "2:02:02"},
	}
	for _, tc := range tests {
		if got := formatSeconds(tc.seconds); got != tc.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestFormatProgress(t *testing.T) {
	downloading := queue.Item{Status: queue.StatusDownloading, Progress: 37.6}
	if got := formatProgress(downloading); got != "38%" {
		t.Errorf("downloading progress = %q", got)
	}
	chunked := queue.Item{Status: queue.StatusPlaying, Chunks: []string{"a", "b", "c"}, CurrentChunk: 1}
	if got := formatProgress(chunked); got != "part 2/3" {
		t.Errorf("chunked progress = %q", got)
	}
	ready := queue.Item{Status: queue.StatusReady}
	if got := formatProgress(ready); got != "" {
		t.Errorf("ready progress = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a very long title that keeps going", 15); got != "a very long..." {
		t.Errorf("truncate long = %q", got)
	}
}

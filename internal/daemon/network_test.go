package daemon

import (
	"testing"

	"hearth/internal/config"
)

func TestStreamURLBuilderUsesAdvertiseHost(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.AdvertiseHost = "192.168.1.5"
	cfg.Paths.MediaBind = "0.0.0.0:7613"

	streamURL, err := StreamURLBuilder(&cfg)
	if err != nil {
		t.Fatalf("StreamURLBuilder: %v", err)
	}
	got := streamURL("dQw4w9WgXcQ")
	want := "http://192.168.1.5:7613/media/dQw4w9WgXcQ.mp4"
	if got != want {
		t.Fatalf("streamURL = %q, want %q", got, want)
	}

	chunk := streamURL("dQw4w9WgXcQ_chunk_001")
	if chunk != "http://192.168.1.5:7613/media/dQw4w9WgXcQ_chunk_001.mp4" {
		t.Fatalf("chunk streamURL = %q", chunk)
	}
}

func TestStreamURLBuilderRejectsBadBind(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.AdvertiseHost = "192.168.1.5"
	cfg.Paths.MediaBind = "no-port-here"

	if _, err := StreamURLBuilder(&cfg); err == nil {
		t.Fatal("expected error for bind address without port")
	}
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"hearth/internal/queue"
)

func useColor() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusLabel(status queue.Status) string {
	label := string(status)
	if !useColor() {
		return label
	}
	switch status {
	case queue.StatusReady:
		return text.FgGreen.Sprint(label)
	case queue.StatusPlaying:
		return text.Colors{text.FgGreen, text.Bold}.Sprint(label)
	case queue.StatusDownloading:
		return text.FgCyan.Sprint(label)
	case queue.StatusError:
		return text.FgRed.Sprint(label)
	case queue.StatusPlayed:
		return text.Faint.Sprint(label)
	default:
		return label
	}
}

// formatSeconds renders a duration as h:mm:ss, dropping the hour field for
// short clips. Zero means the duration is unknown.
func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func formatProgress(item queue.Item) string {
	switch item.Status {
	case queue.StatusDownloading:
		return fmt.Sprintf("%.0f%%", item.Progress)
	case queue.StatusPlaying:
		if len(item.Chunks) > 0 {
			return fmt.Sprintf("part %d/%d", item.CurrentChunk+1, len(item.Chunks))
		}
		return ""
	default:
		return ""
	}
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-3]) + "..."
}

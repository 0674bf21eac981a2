package media

import "strings"

// Video describes a fetchable video as reported by the metadata source.
type Video struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader,omitempty"`
	URL       string  `json:"url"`
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// ExtractVideoID pulls the 11-character video ID out of common YouTube URL
// shapes. It returns false for anything it does not recognize.
func ExtractVideoID(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if isVideoID(trimmed) {
		return trimmed, true
	}
	for _, marker := range []string{"watch?v=", "youtu.be/", "/shorts/", "/embed/", "/live/"} {
		idx := strings.Index(trimmed, marker)
		if idx < 0 {
			continue
		}
		rest := trimmed[idx+len(marker):]
		if cut := strings.IndexAny(rest, "?&#/"); cut >= 0 {
			rest = rest[:cut]
		}
		if isVideoID(rest) {
			return rest, true
		}
	}
	return "", false
}

func isVideoID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

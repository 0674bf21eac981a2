// Package search looks up videos through yt-dlp's search and metadata modes.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"hearth/internal/logging"
	"hearth/internal/media"
)

const defaultTimeout = 30 * time.Second

// Candidate is one search result with enough signal for curation filtering.
type Candidate struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	Uploader    string  `json:"uploader"`
	ViewCount   int64   `json:"viewCount"`
	URL         string  `json:"url"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description,omitempty"`
	IsLive      bool    `json:"isLive"`
}

// Video converts the candidate to the queue's media representation.
func (c Candidate) Video() media.Video {
	return media.Video{
		ID:        c.ID,
		Title:     c.Title,
		Thumbnail: c.Thumbnail,
		Duration:  c.Duration,
		Uploader:  c.Uploader,
		URL:       c.URL,
	}
}

// OutputExecutor runs a command and returns its stdout. Search output is
// captured whole because single-video metadata lines routinely exceed any
// sane line-scanner buffer.
type OutputExecutor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandOutputExecutor struct{}

func (commandOutputExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, binary, args...).Output() //nolint:gosec
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", binary, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec OutputExecutor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client wraps yt-dlp search and metadata lookups.
type Client struct {
	binary  string
	timeout time.Duration
	exec    OutputExecutor
	logger  *slog.Logger
}

// NewClient constructs a search client. An empty binary falls back to yt-dlp
// on PATH.
func NewClient(binary string, logger *slog.Logger, opts ...Option) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	c := &Client{
		binary:  binary,
		timeout: defaultTimeout,
		exec:    commandOutputExecutor{},
		logger:  logging.NewComponentLogger(logger, "search"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs a flat-playlist search and returns up to maxResults candidates.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Candidate, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := fmt.Sprintf("ytsearch%d:%s", maxResults, query)
	out, err := c.exec.Output(ctx, c.binary, []string{"--flat-playlist", "-j", target})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var candidates []Candidate
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry ytEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse search result: %w", err)
		}
		candidates = append(candidates, entry.candidate())
	}
	c.logger.Debug("search finished",
		logging.String("query", query),
		logging.Int("results", len(candidates)))
	return candidates, nil
}

// Metadata fetches full metadata for one video, including description and a
// reliable duration, which flat-playlist results often lack.
func (c *Client) Metadata(ctx context.Context, videoID string) (Candidate, error) {
	return c.lookup(ctx, media.WatchURL(videoID))
}

// VideoInfo resolves an arbitrary video URL into the queue's media
// representation.
func (c *Client) VideoInfo(ctx context.Context, url string) (media.Video, error) {
	candidate, err := c.lookup(ctx, url)
	if err != nil {
		return media.Video{}, err
	}
	v := candidate.Video()
	v.URL = url
	return v, nil
}

func (c *Client) lookup(ctx context.Context, url string) (Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.exec.Output(ctx, c.binary, []string{"-j", "--no-download", url})
	if err != nil {
		return Candidate{}, fmt.Errorf("metadata for %s: %w", url, err)
	}
	var entry ytEntry
	if err := json.Unmarshal(out, &entry); err != nil {
		return Candidate{}, fmt.Errorf("parse metadata: %w", err)
	}
	return entry.candidate(), nil
}

// ytEntry mirrors the yt-dlp JSON fields we consume.
type ytEntry struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	ViewCount   int64   `json:"view_count"`
	URL         string  `json:"url"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description"`
	IsLive      bool    `json:"is_live"`
	LiveStatus  string  `json:"live_status"`
	Thumbnails  []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (e ytEntry) candidate() Candidate {
	uploader := e.Uploader
	if uploader == "" {
		uploader = e.Channel
	}
	url := e.URL
	if url == "" {
		url = media.WatchURL(e.ID)
	}
	thumbnail := e.Thumbnail
	if thumbnail == "" && len(e.Thumbnails) > 0 {
		thumbnail = e.Thumbnails[0].URL
	}
	return Candidate{
		ID:          e.ID,
		Title:       e.Title,
		Duration:    e.Duration,
		Uploader:    uploader,
		ViewCount:   e.ViewCount,
		URL:         url,
		Thumbnail:   thumbnail,
		Description: e.Description,
		IsLive:      e.IsLive || e.LiveStatus == "is_live" || e.LiveStatus == "is_upcoming",
	}
}

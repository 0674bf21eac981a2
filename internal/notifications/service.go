// Package notifications pushes playback and error events to ntfy.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hearth/internal/config"
)

const userAgent = "Hearth/0.1.0"

// Service defines the notification surface exposed to the daemon and queue.
type Service interface {
	NotifyNowPlaying(ctx context.Context, title, device string) error
	NotifyQueueError(ctx context.Context, title string, cause error) error
	NotifyCurationAdded(ctx context.Context, title, concept string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		nowPlaying: cfg.Notifications.NowPlaying,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	nowPlaying bool
	errors     bool
}

func (n *ntfyService) NotifyNowPlaying(ctx context.Context, title, device string) error {
	if !n.nowPlaying {
		return nil
	}
	title = strings.TrimSpace(title)
	device = strings.TrimSpace(device)
	message := fmt.Sprintf("Now playing: %s", title)
	if device != "" {
		message = fmt.Sprintf("%s on %s", message, device)
	}
	data := payload{
		title:   "Hearth - Now Playing",
		message: message,
		tags:    []string{"hearth", "playback"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueError(ctx context.Context, title string, cause error) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Queue error")
	if title = strings.TrimSpace(title); title != "" {
		builder.WriteString(" for ")
		builder.WriteString(title)
	}
	builder.WriteString(": ")
	if cause != nil {
		builder.WriteString(strings.TrimSpace(cause.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Hearth - Error",
		message:  builder.String(),
		tags:     []string{"hearth", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCurationAdded(ctx context.Context, title, concept string) error {
	title = strings.TrimSpace(title)
	concept = strings.TrimSpace(concept)
	message := fmt.Sprintf("Curated: %s", title)
	if concept != "" {
		message = fmt.Sprintf("%s (%s)", message, concept)
	}
	data := payload{
		title:   "Hearth - Queue Updated",
		message: message,
		tags:    []string{"hearth", "curation"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Hearth - Test",
		message:  "Notification system test",
		tags:     []string{"hearth", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyNowPlaying(context.Context, string, string) error    { return nil }
func (noopService) NotifyQueueError(context.Context, string, error) error     { return nil }
func (noopService) NotifyCurationAdded(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }

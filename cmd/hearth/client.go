package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hearth/internal/curator"
	"hearth/internal/daemon"
	"hearth/internal/history"
	"hearth/internal/queue"
	"hearth/internal/sink"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := strings.TrimSpace(addr)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		// PlayNext can block while a download finishes.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is hearthd running? %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Status() (daemon.Status, error) {
	var st daemon.Status
	err := c.do(http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (c *apiClient) QueueList() ([]queue.Item, error) {
	var resp struct {
		Items []queue.Item `json:"items"`
	}
	err := c.do(http.MethodGet, "/api/queue", nil, &resp)
	return resp.Items, err
}

func (c *apiClient) QueueAdd(url string) (queue.Item, error) {
	var item queue.Item
	err := c.do(http.MethodPost, "/api/queue", map[string]string{"url": url}, &item)
	return item, err
}

func (c *apiClient) QueueRemove(id string) error {
	return c.do(http.MethodDelete, "/api/queue/"+id, nil, nil)
}

func (c *apiClient) QueueMove(id string, index int) error {
	return c.do(http.MethodPost, "/api/queue/"+id+"/move", map[string]int{"index": index}, nil)
}

func (c *apiClient) QueuePlay(id string) error {
	return c.do(http.MethodPost, "/api/queue/"+id+"/play", nil, nil)
}

func (c *apiClient) PlayNext() error {
	return c.do(http.MethodPost, "/api/queue/next", nil, nil)
}

func (c *apiClient) ClearPlayed() error {
	return c.do(http.MethodDelete, "/api/queue/played", nil, nil)
}

func (c *apiClient) Playback() (sink.PlaybackStatus, error) {
	var st sink.PlaybackStatus
	err := c.do(http.MethodGet, "/api/playback", nil, &st)
	return st, err
}

func (c *apiClient) PlaybackAction(action string) error {
	return c.do(http.MethodPost, "/api/playback/"+action, nil, nil)
}

func (c *apiClient) Seek(seconds float64) error {
	return c.do(http.MethodPost, "/api/playback/seek", map[string]float64{"seconds": seconds}, nil)
}

func (c *apiClient) SetVolume(level float64) error {
	return c.do(http.MethodPost, "/api/playback/volume", map[string]float64{"level": level}, nil)
}

func (c *apiClient) Device() (bool, sink.Device, error) {
	var resp struct {
		Connected bool         `json:"connected"`
		Device    *sink.Device `json:"device"`
	}
	err := c.do(http.MethodGet, "/api/device", nil, &resp)
	if resp.Device == nil {
		return resp.Connected, sink.Device{}, err
	}
	return resp.Connected, *resp.Device, err
}

func (c *apiClient) DeviceConnect(device sink.Device) (sink.PlaybackStatus, error) {
	var st sink.PlaybackStatus
	err := c.do(http.MethodPost, "/api/device/connect", device, &st)
	return st, err
}

func (c *apiClient) DeviceDisconnect() error {
	return c.do(http.MethodPost, "/api/device/disconnect", nil, nil)
}

func (c *apiClient) Curation() (curator.Status, error) {
	var st curator.Status
	err := c.do(http.MethodGet, "/api/curation", nil, &st)
	return st, err
}

func (c *apiClient) CurationTrigger() error {
	return c.do(http.MethodPost, "/api/curation/trigger", nil, nil)
}

func (c *apiClient) History(limit int) ([]history.Entry, error) {
	path := "/api/history"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp struct {
		Entries []history.Entry `json:"entries"`
	}
	err := c.do(http.MethodGet, path, nil, &resp)
	return resp.Entries, err
}

func (c *apiClient) HistoryClear() error {
	return c.do(http.MethodDelete, "/api/history", nil, nil)
}

func (c *apiClient) TestNotification() error {
	return c.do(http.MethodPost, "/api/notifications/test", nil, nil)
}

// ConfigJSON returns the daemon's sanitized configuration as indented JSON.
func (c *apiClient) ConfigJSON() (string, error) {
	var raw json.RawMessage
	if err := c.do(http.MethodGet, "/api/config", nil, &raw); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlayback()
	c.normalizeFetch()
	c.normalizeCuration()
	c.normalizeLLM()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.MediaBind = strings.TrimSpace(c.Paths.MediaBind)
	if c.Paths.MediaBind == "" {
		c.Paths.MediaBind = defaultMediaBind
	}
	c.Paths.AdvertiseHost = strings.TrimSpace(c.Paths.AdvertiseHost)
	return nil
}

func (c *Config) normalizePlayback() {
	if c.Playback.ChunkSeconds <= 0 {
		c.Playback.ChunkSeconds = defaultChunkSeconds
	}
	if c.Playback.CleanupGraceSeconds < 0 {
		c.Playback.CleanupGraceSeconds = defaultCleanupGraceSeconds
	}
	if c.Playback.AutoplaySettleMS < 0 {
		c.Playback.AutoplaySettleMS = defaultAutoplaySettleMS
	}
	if c.Playback.ConnectTimeoutSeconds <= 0 {
		c.Playback.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
	if c.Playback.RetainPlayed < 0 {
		c.Playback.RetainPlayed = defaultRetainPlayed
	}
	if c.Playback.StatusPollSeconds <= 0 {
		c.Playback.StatusPollSeconds = defaultStatusPollSeconds
	}
}

func (c *Config) normalizeFetch() {
	c.Fetch.Quality = strings.ToLower(strings.TrimSpace(c.Fetch.Quality))
	if c.Fetch.Quality == "" {
		c.Fetch.Quality = defaultQuality
	}
	c.Fetch.YtdlpBinary = strings.TrimSpace(c.Fetch.YtdlpBinary)
	if c.Fetch.YtdlpBinary == "" {
		c.Fetch.YtdlpBinary = defaultYtdlpBinary
	}
	c.Fetch.FFmpegBinary = strings.TrimSpace(c.Fetch.FFmpegBinary)
	if c.Fetch.FFmpegBinary == "" {
		c.Fetch.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeCuration() {
	if c.Curation.QueueSize <= 0 {
		c.Curation.QueueSize = defaultQueueSize
	}
	if c.Curation.CheckIntervalSeconds <= 0 {
		c.Curation.CheckIntervalSeconds = defaultCheckIntervalSeconds
	}
	if c.Curation.MinDurationSeconds <= 0 {
		c.Curation.MinDurationSeconds = defaultMinDurationSeconds
	}
	if c.Curation.MaxDurationSeconds <= 0 {
		c.Curation.MaxDurationSeconds = defaultMaxDurationSeconds
	}
	concepts := make([]string, 0, len(c.Curation.Concepts))
	for _, concept := range c.Curation.Concepts {
		if trimmed := strings.TrimSpace(concept); trimmed != "" {
			concepts = append(concepts, trimmed)
		}
	}
	c.Curation.Concepts = concepts
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeHistory() {
	if c.History.TTLDays <= 0 {
		c.History.TTLDays = defaultHistoryTTLDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateCuration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.ChunkSeconds < 60 {
		return fmt.Errorf("playback.chunk_seconds must be at least 60, got %d", c.Playback.ChunkSeconds)
	}
	return nil
}

func (c *Config) validateFetch() error {
	switch c.Fetch.Quality {
	case "720p", "1080p":
		return nil
	default:
		return fmt.Errorf("fetch.quality must be 720p or 1080p, got %q", c.Fetch.Quality)
	}
}

func (c *Config) validateCuration() error {
	if c.Curation.MinDurationSeconds >= c.Curation.MaxDurationSeconds {
		return fmt.Errorf(
			"curation.min_duration_seconds (%d) must be less than curation.max_duration_seconds (%d)",
			c.Curation.MinDurationSeconds,
			c.Curation.MaxDurationSeconds,
		)
	}
	return nil
}

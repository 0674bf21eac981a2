package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hearth/internal/config"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", path)
	}
	if cfg.Fetch.Quality != "720p" {
		t.Fatalf("default quality = %q, want 720p", cfg.Fetch.Quality)
	}
	if cfg.Playback.ChunkSeconds != 1800 {
		t.Fatalf("default chunk_seconds = %d, want 1800", cfg.Playback.ChunkSeconds)
	}
	if cfg.History.TTLDays != 7 {
		t.Fatalf("default history ttl = %d, want 7", cfg.History.TTLDays)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
download_dir = "` + filepath.Join(dir, "downloads") + `"

[fetch]
quality = "1080P"

[curation]
concepts = [" cab rides ", "", "aquariums"]

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if cfg.Fetch.Quality != "1080p" {
		t.Fatalf("quality = %q, want 1080p", cfg.Fetch.Quality)
	}
	if got := cfg.Curation.Concepts; len(got) != 2 || got[0] != "cab rides" || got[1] != "aquariums" {
		t.Fatalf("concepts = %v, want trimmed non-empty entries", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("log format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownQuality(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[fetch]\nquality = \"480p\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "fetch.quality") {
		t.Fatalf("expected quality validation error, got %v", err)
	}
}

func TestLoadRejectsInvertedDurationBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[curation]\nmin_duration_seconds = 500\nmax_duration_seconds = 400\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "min_duration_seconds") {
		t.Fatalf("expected duration validation error, got %v", err)
	}
}

func TestLLMKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "from-env")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Fatalf("llm api key = %q, want env fallback", cfg.LLM.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[playback]") {
		t.Fatal("sample config missing playback section")
	}
}

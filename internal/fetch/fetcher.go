// Package fetch downloads videos with yt-dlp and prepares them for the
// receiver, splitting long files into chunks with ffmpeg.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"hearth/internal/logging"
	"hearth/internal/queue"
)

var progressPattern = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// Config controls the fetcher's binaries and output layout.
type Config struct {
	// DownloadDir is where finished media files land.
	DownloadDir string
	// Quality selects the format ladder, "720p" or "1080p".
	Quality string
	// YtdlpBinary and FFmpegBinary override the binaries on PATH.
	YtdlpBinary  string
	FFmpegBinary string
	// ChunkSeconds is the chunk length for split files.
	ChunkSeconds int
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(f *Fetcher) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// Fetcher wraps yt-dlp and ffmpeg CLI interactions. It implements
// queue.Fetcher.
type Fetcher struct {
	downloadDir  string
	quality      string
	ytdlp        string
	ffmpeg       string
	chunkSeconds int
	exec         Executor
	logger       *slog.Logger
}

// New constructs a fetcher.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Fetcher, error) {
	if strings.TrimSpace(cfg.DownloadDir) == "" {
		return nil, errors.New("download directory required")
	}
	if cfg.YtdlpBinary == "" {
		cfg.YtdlpBinary = "yt-dlp"
	}
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if cfg.ChunkSeconds <= 0 {
		cfg.ChunkSeconds = 1800
	}
	f := &Fetcher{
		downloadDir:  cfg.DownloadDir,
		quality:      cfg.Quality,
		ytdlp:        cfg.YtdlpBinary,
		ffmpeg:       cfg.FFmpegBinary,
		chunkSeconds: cfg.ChunkSeconds,
		exec:         commandExecutor{},
		logger:       logging.NewComponentLogger(logger, "fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// MediaPath returns the on-disk path for a downloaded video.
func (f *Fetcher) MediaPath(videoID string) string {
	return filepath.Join(f.downloadDir, videoID+".mp4")
}

// Download starts a yt-dlp download. Already-cached videos complete
// immediately with 100% progress.
func (f *Fetcher) Download(ctx context.Context, videoID, url string, onProgress func(float64)) (queue.Handle, error) {
	outputPath := f.MediaPath(videoID)
	if _, err := os.Stat(outputPath); err == nil {
		if onProgress != nil {
			onProgress(100)
		}
		return completedHandle{}, nil
	}

	// The output path goes in without the extension; --merge-output-format
	// appends it.
	outputBase := filepath.Join(f.downloadDir, videoID)
	args := []string{
		"-f", formatString(f.quality),
		"--merge-output-format", "mp4",
		"--ppa", "ffmpeg:-movflags +faststart",
		"-o", outputBase,
		"--newline",
		"--no-playlist",
		url,
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &downloadHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		var lastProgress float64
		runErr := f.exec.Run(runCtx, f.ytdlp, args, func(line string) {
			percent, ok := parseDownloadProgress(line)
			if !ok || percent <= lastProgress {
				return
			}
			lastProgress = percent
			if onProgress != nil {
				onProgress(math.Round(percent))
			}
		})
		if runErr == nil {
			if _, statErr := os.Stat(outputPath); statErr != nil {
				runErr = fmt.Errorf("yt-dlp finished without producing %s", filepath.Base(outputPath))
			}
		}
		if runErr != nil {
			f.cleanPartials(videoID)
			h.fail(fmt.Errorf("yt-dlp download: %w", runErr))
			return
		}
		if onProgress != nil {
			onProgress(100)
		}
	}()

	return h, nil
}

// Delete removes the cached media and any chunk files for a video. Missing
// files are fine.
func (f *Fetcher) Delete(videoID string) error {
	if err := os.Remove(f.MediaPath(videoID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete media: %w", err)
	}
	chunks, err := filepath.Glob(filepath.Join(f.downloadDir, videoID+"_chunk_*.mp4"))
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	for _, chunk := range chunks {
		if err := os.Remove(chunk); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete chunk: %w", err)
		}
	}
	return nil
}

// Split cuts a downloaded video into chunk files with ffmpeg stream copy and
// removes the original. Videos that fit in one chunk are left alone.
func (f *Fetcher) Split(ctx context.Context, videoID string, durationSeconds float64) ([]string, error) {
	numChunks := int(math.Ceil(durationSeconds / float64(f.chunkSeconds)))
	if numChunks <= 1 {
		return nil, nil
	}

	inputPath := f.MediaPath(videoID)
	stems := make([]string, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		stem := fmt.Sprintf("%s_chunk_%03d", videoID, i)
		chunkPath := filepath.Join(f.downloadDir, stem+".mp4")
		args := []string{
			"-i", inputPath,
			"-ss", strconv.Itoa(i * f.chunkSeconds),
			"-t", strconv.Itoa(f.chunkSeconds),
			"-c", "copy",
			"-movflags", "+faststart",
			"-y",
			chunkPath,
		}
		if err := f.exec.Run(ctx, f.ffmpeg, args, nil); err != nil {
			for _, made := range stems {
				_ = os.Remove(filepath.Join(f.downloadDir, made+".mp4"))
			}
			_ = os.Remove(chunkPath)
			return nil, fmt.Errorf("ffmpeg chunk %d: %w", i, err)
		}
		stems = append(stems, stem)
	}

	if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove original after split: %w", err)
	}
	f.logger.Debug("split into chunks",
		logging.String(logging.FieldVideoID, videoID),
		logging.Int("chunks", numChunks))
	return stems, nil
}

// cleanPartials removes yt-dlp leftovers (.part, .f137, unmerged tracks)
// after a failed download.
func (f *Fetcher) cleanPartials(videoID string) {
	entries, err := os.ReadDir(f.downloadDir)
	if err != nil {
		return
	}
	final := videoID + ".mp4"
	for _, entry := range entries {
		name := entry.Name()
		if name == final || !strings.HasPrefix(name, videoID) {
			continue
		}
		_ = os.Remove(filepath.Join(f.downloadDir, name))
	}
}

func formatString(quality string) string {
	height := 720
	if quality == "1080p" {
		height = 1080
	}
	return fmt.Sprintf(
		"bestvideo[ext=mp4][vcodec^=avc1][height<=%d]+bestaudio[ext=m4a]/best[ext=mp4][height<=%d]",
		height, height)
}

func parseDownloadProgress(line string) (float64, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return percent, true
}

type downloadHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

func (h *downloadHandle) Cancel() {
	h.cancel()
}

func (h *downloadHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.err
	}
}

func (h *downloadHandle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// completedHandle stands in for downloads that were already on disk.
type completedHandle struct{}

func (completedHandle) Cancel() {}

func (completedHandle) Wait(context.Context) error { return nil }

var _ queue.Fetcher = (*Fetcher)(nil)

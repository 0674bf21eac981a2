package fetch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hearth/internal/fetch"
	"hearth/internal/logging"
)

type execCall struct {
	binary string
	args   []string
}

type scriptedExecutor struct {
	mu     sync.Mutex
	calls  []execCall
	script func(ctx context.Context, binary string, args []string, onLine func(string)) error
}

func (e *scriptedExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	e.mu.Lock()
	e.calls = append(e.calls, execCall{binary: binary, args: append([]string(nil), args...)})
	e.mu.Unlock()
	if e.script == nil {
		return nil
	}
	return e.script(ctx, binary, args, onLine)
}

func (e *scriptedExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *scriptedExecutor) call(i int) execCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i]
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

func newFetcher(t *testing.T, dir string, exec fetch.Executor) *fetch.Fetcher {
	t.Helper()
	f, err := fetch.New(fetch.Config{
		DownloadDir:  dir,
		Quality:      "720p",
		ChunkSeconds: 1800,
	}, logging.NewNop(), fetch.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDownloadReportsProgressAndCompletes(t *testing.T) {
	dir := t.TempDir()
	exec := &scriptedExecutor{
		script: func(_ context.Context, _ string, args []string, onLine func(string)) error {
			onLine("[youtube] abc12345678: Downloading webpage")
			onLine("[download]  10.0% of 120.00MiB at 5.00MiB/s")
			onLine("[download]   5.0% of 120.00MiB at 5.00MiB/s") // regression, ignored
			onLine("[download]  99.2% of 120.00MiB at 5.00MiB/s")
			writeFile(t, filepath.Join(dir, "abc12345678.mp4"))
			return nil
		},
	}
	f := newFetcher(t, dir, exec)

	progress := &progressLog{}
	h, err := f.Download(context.Background(), "abc12345678", "https://www.youtube.com/watch?v=abc12345678", progress.record)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	got := progress.snapshot()
	want := []float64{10, 99, 100}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}

	call := exec.call(0)
	if call.binary != "yt-dlp" {
		t.Fatalf("binary = %q", call.binary)
	}
	joined := strings.Join(call.args, " ")
	if !strings.Contains(joined, "height<=720") {
		t.Fatalf("format does not cap height: %s", joined)
	}
	if !strings.Contains(joined, "--no-playlist") || !strings.Contains(joined, "--newline") {
		t.Fatalf("missing yt-dlp flags: %s", joined)
	}
}

func TestDownloadSkipsWhenAlreadyCached(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "abc12345678.mp4"))
	exec := &scriptedExecutor{}
	f := newFetcher(t, dir, exec)

	progress := &progressLog{}
	h, err := f.Download(context.Background(), "abc12345678", "url", progress.record)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if exec.callCount() != 0 {
		t.Fatal("cached download should not invoke yt-dlp")
	}
	if got := progress.snapshot(); len(got) != 1 || got[0] != 100 {
		t.Fatalf("progress = %v, want [100]", got)
	}
}

func TestDownloadFailureCleansPartials(t *testing.T) {
	dir := t.TempDir()
	exec := &scriptedExecutor{
		script: func(_ context.Context, _ string, _ []string, _ func(string)) error {
			writeFile(t, filepath.Join(dir, "abc12345678.f137.mp4"))
			writeFile(t, filepath.Join(dir, "abc12345678.mp4.part"))
			return errors.New("network unreachable")
		},
	}
	f := newFetcher(t, dir, exec)

	h, err := f.Download(context.Background(), "abc12345678", "url", nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := h.Wait(context.Background()); err == nil {
		t.Fatal("expected download failure")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("partials left behind: %v", entries)
	}
}

func TestDownloadCancel(t *testing.T) {
	dir := t.TempDir()
	exec := &scriptedExecutor{
		script: func(ctx context.Context, _ string, _ []string, _ func(string)) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	f := newFetcher(t, dir, exec)

	h, err := f.Download(context.Background(), "abc12345678", "url", nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	h.Cancel()

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Wait(waitCtx); err == nil {
		t.Fatal("cancelled download should report an error")
	}
}

func TestDeleteRemovesMediaAndChunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "abc12345678.mp4"))
	writeFile(t, filepath.Join(dir, "abc12345678_chunk_000.mp4"))
	writeFile(t, filepath.Join(dir, "abc12345678_chunk_001.mp4"))
	writeFile(t, filepath.Join(dir, "other1234567.mp4"))
	f := newFetcher(t, dir, &scriptedExecutor{})

	if err := f.Delete("abc12345678"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "other1234567.mp4" {
		t.Fatalf("unexpected leftovers: %v", entries)
	}
	// Deleting again is fine.
	if err := f.Delete("abc12345678"); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
}

func TestSplitShortVideoIsNoop(t *testing.T) {
	dir := t.TempDir()
	exec := &scriptedExecutor{}
	f := newFetcher(t, dir, exec)

	stems, err := f.Split(context.Background(), "abc12345678", 900)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if stems != nil {
		t.Fatalf("stems = %v, want nil", stems)
	}
	if exec.callCount() != 0 {
		t.Fatal("short video should not invoke ffmpeg")
	}
}

func TestSplitAtExactChunkLengthIsNoop(t *testing.T) {
	dir := t.TempDir()
	exec := &scriptedExecutor{}
	f := newFetcher(t, dir, exec)

	stems, err := f.Split(context.Background(), "abc12345678", 1800)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if stems != nil {
		t.Fatalf("stems = %v, want nil", stems)
	}
	if exec.callCount() != 0 {
		t.Fatal("video at exactly the chunk length should not invoke ffmpeg")
	}
}

func TestSplitJustOverChunkLength(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "abc12345678.mp4"))
	exec := &scriptedExecutor{
		script: func(_ context.Context, _ string, args []string, _ func(string)) error {
			writeFile(t, args[len(args)-1])
			return nil
		},
	}
	f := newFetcher(t, dir, exec)

	stems, err := f.Split(context.Background(), "abc12345678", 1801)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"abc12345678_chunk_000", "abc12345678_chunk_001"}
	if len(stems) != len(want) || stems[0] != want[0] || stems[1] != want[1] {
		t.Fatalf("stems = %v, want %v", stems, want)
	}
	offsets := []string{"0", "1800"}
	for i, wantOffset := range offsets {
		joined := strings.Join(exec.call(i).args, " ")
		if !strings.Contains(joined, "-ss "+wantOffset+" ") {
			t.Fatalf("chunk %d args = %s, want offset %s", i, joined, wantOffset)
		}
	}
}

func TestSplitProducesChunksAndRemovesOriginal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "abc12345678.mp4"))
	exec := &scriptedExecutor{
		script: func(_ context.Context, _ string, args []string, _ func(string)) error {
			writeFile(t, args[len(args)-1])
			return nil
		},
	}
	f := newFetcher(t, dir, exec)

	stems, err := f.Split(context.Background(), "abc12345678", 4000)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"abc12345678_chunk_000", "abc12345678_chunk_001", "abc12345678_chunk_002"}
	if len(stems) != len(want) {
		t.Fatalf("stems = %v, want %v", stems, want)
	}
	for i := range want {
		if stems[i] != want[i] {
			t.Fatalf("stems = %v, want %v", stems, want)
		}
		if _, err := os.Stat(filepath.Join(dir, stems[i]+".mp4")); err != nil {
			t.Fatalf("chunk file missing: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "abc12345678.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("original should be removed after a successful split")
	}

	// Each invocation copies a window at the right offset.
	offsets := []string{"0", "1800", "3600"}
	for i, wantOffset := range offsets {
		call := exec.call(i)
		if call.binary != "ffmpeg" {
			t.Fatalf("binary = %q", call.binary)
		}
		joined := strings.Join(call.args, " ")
		if !strings.Contains(joined, "-ss "+wantOffset+" ") || !strings.Contains(joined, "-c copy") {
			t.Fatalf("chunk %d args = %s", i, joined)
		}
	}
}

func TestSplitFailureCleansChunksAndKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "abc12345678.mp4"))
	calls := 0
	exec := &scriptedExecutor{
		script: func(_ context.Context, _ string, args []string, _ func(string)) error {
			calls++
			if calls == 2 {
				return errors.New("moov atom not found")
			}
			writeFile(t, args[len(args)-1])
			return nil
		},
	}
	f := newFetcher(t, dir, exec)

	if _, err := f.Split(context.Background(), "abc12345678", 4000); err == nil {
		t.Fatal("expected split failure")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "abc12345678.mp4" {
		t.Fatalf("unexpected directory state: %v", entries)
	}
}

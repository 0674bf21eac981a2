// Package history persists play history in SQLite and answers the curator's
// "seen recently" checks.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one played video.
type Entry struct {
	VideoID  string    `json:"videoId"`
	Title    string    `json:"title"`
	PlayedAt time.Time `json:"playedAt"`
}

// Store manages play history backed by SQLite. Entries older than the TTL
// are pruned lazily on every read and write.
type Store struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	now  func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open initializes or connects to the history database in dataDir.
func Open(dataDir string, ttlDays int, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("data directory required")
	}
	if ttlDays <= 0 {
		ttlDays = 7
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:   db,
		path: dbPath,
		ttl:  time.Duration(ttlDays) * 24 * time.Hour,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS play_history (
	video_id  TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	played_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_play_history_played_at ON play_history (played_at);
`
	if err := s.execWithRetry(ctx, schema); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// RecordPlayed upserts a history entry, refreshing the timestamp for videos
// played again.
func (s *Store) RecordPlayed(ctx context.Context, videoID, title string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return errors.New("video id required")
	}
	if err := s.pruneExpired(ctx); err != nil {
		return err
	}
	const query = `
INSERT INTO play_history (video_id, title, played_at) VALUES (?, ?, ?)
ON CONFLICT(video_id) DO UPDATE SET title = excluded.title, played_at = excluded.played_at
`
	if err := s.execWithRetry(ctx, query, videoID, title, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("record played: %w", err)
	}
	return nil
}

// IsRecentlyPlayed reports whether the video was played within the TTL.
func (s *Store) IsRecentlyPlayed(ctx context.Context, videoID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM play_history WHERE video_id = ? AND played_at > ?",
		videoID, s.cutoff()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	return count > 0, nil
}

// Recent returns unexpired entries, newest first. A non-positive limit
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := s.pruneExpired(ctx); err != nil {
		return nil, err
	}
	query := "SELECT video_id, title, played_at FROM play_history ORDER BY played_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var playedAt int64
		if err := rows.Scan(&entry.VideoID, &entry.Title, &playedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.PlayedAt = time.UnixMilli(playedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// Clear removes all history entries.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.execWithRetry(ctx, "DELETE FROM play_history"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *Store) pruneExpired(ctx context.Context) error {
	if err := s.execWithRetry(ctx, "DELETE FROM play_history WHERE played_at <= ?", s.cutoff()); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

func (s *Store) cutoff() int64 {
	return s.now().Add(-s.ttl).UnixMilli()
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

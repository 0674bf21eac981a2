package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"hearth/internal/logging"
)

// mediaServer serves downloaded media files to receivers on the LAN. It
// serves flat files only; subdirectory paths are rejected outright.
type mediaServer struct {
	bind   string
	dir    string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

func newMediaServer(bind, dir string, logger *slog.Logger) *mediaServer {
	srv := &mediaServer{
		bind:   bind,
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "media-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/media/", srv.handleMedia)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// Receivers stream large files over long-lived range requests, so
		// the write side stays unbounded.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return srv
}

func (s *mediaServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("media listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("media server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("media server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("dir", s.dir))
	return nil
}

func (s *mediaServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *mediaServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *mediaServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/media/")
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".mp4") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.dir, name))
}

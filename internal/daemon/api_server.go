package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hearth/internal/config"
	"hearth/internal/history"
	"hearth/internal/logging"
	"hearth/internal/queue"
	"hearth/internal/sink"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/queue", srv.handleQueue)
	mux.HandleFunc("/api/queue/next", srv.handlePlayNext)
	mux.HandleFunc("/api/queue/played", srv.handleClearPlayed)
	mux.HandleFunc("/api/queue/", srv.handleQueueItem)
	mux.HandleFunc("/api/playback", srv.handlePlayback)
	mux.HandleFunc("/api/playback/", srv.handlePlaybackControl)
	mux.HandleFunc("/api/device", srv.handleDevice)
	mux.HandleFunc("/api/device/connect", srv.handleDeviceConnect)
	mux.HandleFunc("/api/device/disconnect", srv.handleDeviceDisconnect)
	mux.HandleFunc("/api/curation", srv.handleCuration)
	mux.HandleFunc("/api/curation/trigger", srv.handleCurationTrigger)
	mux.HandleFunc("/api/history", srv.handleHistory)
	mux.HandleFunc("/api/notifications/test", srv.handleTestNotification)
	mux.HandleFunc("/api/config", srv.handleConfig)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
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

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

type queueListResponse struct {
	Items []queue.Item `json:"items"`
}

type addRequest struct {
	URL string `json:"url"`
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items := s.daemon.queue.Items()
		s.writeJSON(w, http.StatusOK, queueListResponse{Items: items})
	case http.MethodPost:
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		url := strings.TrimSpace(req.URL)
		if url == "" {
			s.writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		video, err := s.daemon.resolver.VideoInfo(r.Context(), url)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, fmt.Sprintf("resolve video: %v", err))
			return
		}
		item, err := s.daemon.queue.Add(r.Context(), video, queue.OriginManual, "")
		if err != nil {
			s.writeError(w, statusForError(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, item)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handlePlayNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.queue.PlayNext(r.Context()); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *apiServer) handleClearPlayed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.queue.ClearPlayed()
	s.writeJSON(w, http.StatusOK, nil)
}

type moveRequest struct {
	Index int `json:"index"`
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		item, ok := s.daemon.queue.Get(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "queue item not found")
			return
		}
		s.writeJSON(w, http.StatusOK, item)
	case action == "" && r.Method == http.MethodDelete:
		if err := s.daemon.queue.Remove(id); err != nil {
			s.writeError(w, statusForError(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, nil)
	case action == "play" && r.Method == http.MethodPost:
		if err := s.daemon.queue.Play(r.Context(), id); err != nil {
			s.writeError(w, statusForError(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, nil)
	case action == "move" && r.Method == http.MethodPost:
		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.daemon.queue.Move(id, req.Index); err != nil {
			s.writeError(w, statusForError(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, nil)
	case action != "" && action != "play" && action != "move":
		s.writeError(w, http.StatusNotFound, "unknown queue action")
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.playback.Status())
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

type volumeRequest struct {
	Level float64 `json:"level"`
}

func (s *apiServer) handlePlaybackControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/playback/")

	var err error
	switch action {
	case "play":
		err = s.daemon.playback.Play(r.Context())
	case "pause":
		err = s.daemon.playback.Pause(r.Context())
	case "stop":
		err = s.daemon.playback.Stop(r.Context())
	case "seek":
		var req seekRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err = s.daemon.playback.Seek(r.Context(), req.Seconds)
	case "volume":
		var req volumeRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err = s.daemon.playback.SetVolume(r.Context(), req.Level)
	default:
		s.writeError(w, http.StatusNotFound, "unknown playback action")
		return
	}
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

type deviceResponse struct {
	Connected bool         `json:"connected"`
	Device    *sink.Device `json:"device,omitempty"`
}

func (s *apiServer) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	device, connected := s.daemon.playback.ConnectedDevice()
	resp := deviceResponse{Connected: connected}
	if connected {
		resp.Device = &device
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var device sink.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(device.Host) == "" {
		s.writeError(w, http.StatusBadRequest, "device host is required")
		return
	}
	if device.Name == "" {
		device.Name = device.Host
	}
	if err := s.daemon.playback.Connect(r.Context(), device); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.playback.Status())
}

func (s *apiServer) handleDeviceDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.playback.Disconnect()
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *apiServer) handleCuration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.curation == nil {
		s.writeError(w, http.StatusNotFound, "curation not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.curation.Status())
}

func (s *apiServer) handleCurationTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.curation == nil {
		s.writeError(w, http.StatusNotFound, "curation not configured")
		return
	}
	s.daemon.curation.Trigger()
	s.writeJSON(w, http.StatusAccepted, nil)
}

type historyResponse struct {
	Entries []history.Entry `json:"entries"`
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.daemon.history == nil {
		s.writeError(w, http.StatusNotFound, "history not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := s.daemon.history.Recent(r.Context(), limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
	case http.MethodDelete:
		if err := s.daemon.history.Clear(r.Context()); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, nil)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.notifier == nil {
		s.writeError(w, http.StatusNotFound, "notifications not configured")
		return
	}
	if err := s.daemon.notifier.TestNotification(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

// configView is the sanitized configuration exposed over the API. Secrets
// never leave the process.
type configView struct {
	Paths         config.Paths    `json:"paths"`
	Playback      config.Playback `json:"playback"`
	Fetch         config.Fetch    `json:"fetch"`
	Curation      config.Curation `json:"curation"`
	LLMModel      string          `json:"llmModel"`
	LLMConfigured bool            `json:"llmConfigured"`
	NtfyTopicSet  bool            `json:"ntfyTopicSet"`
}

func (s *apiServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := s.daemon.cfg
	llm := cfg.GetLLM()
	s.writeJSON(w, http.StatusOK, configView{
		Paths:         cfg.Paths,
		Playback:      cfg.Playback,
		Fetch:         cfg.Fetch,
		Curation:      cfg.Curation,
		LLMModel:      llm.Model,
		LLMConfigured: llm.APIKey != "",
		NtfyTopicSet:  strings.TrimSpace(cfg.Notifications.NtfyTopic) != "",
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrNotReady),
		errors.Is(err, queue.ErrNotConnected),
		errors.Is(err, sink.ErrNotConnected),
		errors.Is(err, sink.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, sink.ErrConnectTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, sink.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

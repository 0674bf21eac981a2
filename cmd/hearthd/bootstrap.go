package main

import (
	"context"
	"log/slog"
	"time"

	"hearth/internal/config"
	"hearth/internal/curator"
	"hearth/internal/daemon"
	"hearth/internal/fetch"
	"hearth/internal/history"
	"hearth/internal/llm"
	"hearth/internal/logging"
	"hearth/internal/notifications"
	"hearth/internal/queue"
	"hearth/internal/search"
	"hearth/internal/sink"
	"hearth/internal/sink/go2tvcast"
)

// runtime bundles the long-lived services so main can shut them down in
// reverse construction order.
type runtime struct {
	daemon  *daemon.Daemon
	manager *queue.Manager
	session *sink.Session
	history *history.Store
	logger  *slog.Logger
}

// queueNotifier adapts the notification service to the queue's error surface.
type queueNotifier struct {
	svc notifications.Service
}

func (n queueNotifier) QueueError(ctx context.Context, title string, err error) {
	_ = n.svc.NotifyQueueError(ctx, title, err)
}

// sessionPlayer adapts the sink session to the queue's player surface. The
// queue package stays free of sink types.
type sessionPlayer struct {
	*sink.Session
}

func (p sessionPlayer) IsIdle() bool {
	return p.Session.Status().State == sink.StateIdle
}

func (p sessionPlayer) LoadMedia(ctx context.Context, req queue.LoadRequest) error {
	return p.Session.LoadMedia(ctx, sink.Load{
		ItemID:    req.ItemID,
		Title:     req.Title,
		Thumbnail: req.Thumbnail,
		MediaURL:  req.MediaURL,
		Duration:  req.Duration,
	})
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	fetcher, err := fetch.New(fetch.Config{
		DownloadDir:  cfg.Paths.DownloadDir,
		Quality:      cfg.Fetch.Quality,
		YtdlpBinary:  cfg.Fetch.YtdlpBinary,
		FFmpegBinary: cfg.Fetch.FFmpegBinary,
		ChunkSeconds: cfg.Playback.ChunkSeconds,
	}, logger)
	if err != nil {
		return nil, err
	}

	session := sink.NewSession(go2tvcast.Factory(), logger, sink.Options{
		ConnectTimeout: time.Duration(cfg.Playback.ConnectTimeoutSeconds) * time.Second,
		PollInterval:   time.Duration(cfg.Playback.StatusPollSeconds) * time.Second,
	})

	historyStore, err := history.Open(cfg.Paths.DataDir, cfg.History.TTLDays)
	if err != nil {
		session.Close()
		return nil, err
	}

	streamURL, err := daemon.StreamURLBuilder(cfg)
	if err != nil {
		historyStore.Close()
		session.Close()
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	manager, err := queue.NewManager(fetcher, sessionPlayer{session}, historyStore, queueNotifier{notifier}, logger, queue.Options{
		StreamURL:      streamURL,
		RetainPlayed:   cfg.Playback.RetainPlayed,
		CleanupGrace:   time.Duration(cfg.Playback.CleanupGraceSeconds) * time.Second,
		AutoplaySettle: time.Duration(cfg.Playback.AutoplaySettleMS) * time.Millisecond,
	})
	if err != nil {
		historyStore.Close()
		session.Close()
		return nil, err
	}

	searcher := search.NewClient(cfg.Fetch.YtdlpBinary, logger)

	llmCfg := cfg.GetLLM()
	brain := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})

	cur := curator.New(manager, searcher, historyStore, brain, notifier, logger, curator.Options{
		QueueSize:     cfg.Curation.QueueSize,
		Concepts:      cfg.Curation.Concepts,
		CheckInterval: time.Duration(cfg.Curation.CheckIntervalSeconds) * time.Second,
		MinDuration:   time.Duration(cfg.Curation.MinDurationSeconds) * time.Second,
		MaxDuration:   time.Duration(cfg.Curation.MaxDurationSeconds) * time.Second,
	})

	d, err := daemon.New(cfg, logger, daemon.Deps{
		Queue:    manager,
		Playback: session,
		Resolver: searcher,
		Curation: cur,
		History:  historyStore,
		Notifier: notifier,
	})
	if err != nil {
		manager.Close()
		historyStore.Close()
		session.Close()
		return nil, err
	}

	return &runtime{
		daemon:  d,
		manager: manager,
		session: session,
		history: historyStore,
		logger:  logger,
	}, nil
}

func (r *runtime) close() {
	_ = r.daemon.Close()
	r.manager.Close()
	r.session.Close()
	if err := r.history.Close(); err != nil {
		r.logger.Warn("close history store", logging.Error(err))
	}
}

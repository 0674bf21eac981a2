package config

const (
	defaultDownloadDir           = "~/.local/share/hearth/downloads"
	defaultDataDir               = "~/.local/share/hearth"
	defaultLogDir                = "~/.local/share/hearth/logs"
	defaultAPIBind               = "127.0.0.1:7612"
	defaultMediaBind             = "0.0.0.0:7613"
	defaultChunkSeconds          = 1800
	defaultCleanupGraceSeconds   = 60
	defaultAutoplaySettleMS      = 500
	defaultConnectTimeoutSeconds = 10
	defaultRetainPlayed          = 3
	defaultStatusPollSeconds     = 1
	defaultQuality               = "720p"
	defaultYtdlpBinary           = "yt-dlp"
	defaultFFmpegBinary          = "ffmpeg"
	defaultQueueSize             = 5
	defaultCheckIntervalSeconds  = 30
	defaultMinDurationSeconds    = 120
	defaultMaxDurationSeconds    = 14400
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "openai/gpt-4o-mini"
	defaultLLMTimeoutSeconds     = 60
	defaultHistoryTTLDays        = 7
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
			MediaBind:   defaultMediaBind,
		},
		Playback: Playback{
			ChunkSeconds:          defaultChunkSeconds,
			CleanupGraceSeconds:   defaultCleanupGraceSeconds,
			AutoplaySettleMS:      defaultAutoplaySettleMS,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			RetainPlayed:          defaultRetainPlayed,
			StatusPollSeconds:     defaultStatusPollSeconds,
		},
		Fetch: Fetch{
			Quality:      defaultQuality,
			YtdlpBinary:  defaultYtdlpBinary,
			FFmpegBinary: defaultFFmpegBinary,
		},
		Curation: Curation{
			Enabled:              true,
			QueueSize:            defaultQueueSize,
			CheckIntervalSeconds: defaultCheckIntervalSeconds,
			MinDurationSeconds:   defaultMinDurationSeconds,
			MaxDurationSeconds:   defaultMaxDurationSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			NowPlaying:     true,
			Errors:         true,
		},
		History: History{
			TTLDays: defaultHistoryTTLDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

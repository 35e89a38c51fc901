package config

const (
	defaultWorkspaceDir        = "~/.local/share/showrunner/workspaces"
	defaultLibraryDir          = "~/episodes"
	defaultLogDir              = "~/.local/share/showrunner/logs"
	defaultAPIBind             = "127.0.0.1:7489"
	defaultStageTimeout        = 0
	defaultHeartbeatInterval   = 15
	defaultEventBufferSize     = 64
	defaultMediaFormat         = "bestvideo[height<=1080]+bestaudio/best"
	defaultDownloadTimeout     = 1800
	defaultWhisperModel        = "large-v3-turbo"
	defaultWhisperCacheDir     = "~/.local/share/showrunner/cache/whisperx"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMReferer          = "https://github.com/showrunner/showrunner"
	defaultLLMTitle            = "Showrunner"
	defaultLLMTimeoutSeconds   = 60
	defaultTTSLengthScale      = 1.0
	defaultClipMaxCount        = 8
	defaultClipPaddingSeconds  = 1.5
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LibraryDir:   defaultLibraryDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Engine: Engine{
			StageTimeout:      defaultStageTimeout,
			HeartbeatInterval: defaultHeartbeatInterval,
			EventBufferSize:   defaultEventBufferSize,
		},
		Media: Media{
			Format:          defaultMediaFormat,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Transcription: Transcription{
			Model:    defaultWhisperModel,
			Language: "en",
			CacheDir: defaultWhisperCacheDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			LengthScale: defaultTTSLengthScale,
		},
		Clips: Clips{
			MaxCount:       defaultClipMaxCount,
			PaddingSeconds: defaultClipPaddingSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Failed:         true,
			Interrupted:    true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

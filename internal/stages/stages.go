package stages

import (
	"context"
	"log/slog"

	"showrunner/internal/config"
	"showrunner/internal/logging"
	"showrunner/internal/services/ffmpeg"
	"showrunner/internal/services/llm"
	"showrunner/internal/services/tts"
	"showrunner/internal/services/whisper"
	"showrunner/internal/services/ytdlp"
	"showrunner/internal/stage"
)

// Downloader acquires source media.
type Downloader interface {
	Download(ctx context.Context, sourceURL, dest string) error
}

// Transcriber prepares audio and runs speech-to-text.
type Transcriber interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	Transcribe(ctx context.Context, source, outputDir string) (whisper.Result, error)
}

// Completer issues JSON-only LLM completions.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Synthesizer renders text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, dest string) error
}

// MediaToolkit covers the ffmpeg operations the later stages need.
type MediaToolkit interface {
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
	Cut(ctx context.Context, source string, startSec, durationSec float64, dest string) error
	Concat(ctx context.Context, sources []string, dest string) error
	MergeAudio(ctx context.Context, video, audio, dest string) error
}

// Dependencies carries the service implementations the stage runners drive.
// Tests substitute fakes here; production wiring comes from Configure.
type Dependencies struct {
	Downloader  Downloader
	Transcriber Transcriber
	Completer   Completer
	Synthesizer Synthesizer
	Media       MediaToolkit
}

// Configure builds the production stage set from configuration: every
// registry index bound to a runner over the real external tools.
func Configure(cfg *config.Config, logger *slog.Logger) stage.Set {
	deps := Dependencies{
		Downloader: ytdlp.NewService(ytdlp.Config{
			Format:          cfg.Media.Format,
			RateLimit:       cfg.Media.RateLimit,
			DownloadTimeout: cfg.Media.DownloadTimeout,
		}, cfg.YtDlpBinary()),
		Transcriber: whisper.NewService(whisper.Config{
			Model:       cfg.Transcription.Model,
			Language:    cfg.Transcription.Language,
			CUDAEnabled: cfg.Transcription.CUDAEnabled,
			CacheDir:    cfg.Transcription.CacheDir,
		}, cfg.UvxBinary(), cfg.FFmpegBinary()),
		Completer: llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}),
		Synthesizer: tts.NewService(tts.Config{
			VoicePath:   cfg.TTS.VoicePath,
			LengthScale: cfg.TTS.LengthScale,
		}, cfg.PiperBinary()),
		Media: ffmpeg.NewService(cfg.FFmpegBinary(), cfg.FFprobeBinary()),
	}
	return Build(cfg, logger, deps)
}

// Build binds registry indices to runner funcs over the supplied services.
func Build(cfg *config.Config, logger *slog.Logger, deps Dependencies) stage.Set {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &runner{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "stages"),
	}
	return stage.Set{
		stage.MediaExtraction:     r.mediaExtraction,
		stage.Transcription:       r.transcription,
		stage.ContentAnalysis:     r.contentAnalysis,
		stage.NarrativeGeneration: r.narrativeGeneration,
		stage.SpeechSynthesis:     r.speechSynthesis,
		stage.ClipExtraction:      r.clipExtraction,
		stage.Compilation:         r.compilation,
	}
}

type runner struct {
	cfg    *config.Config
	deps   Dependencies
	logger *slog.Logger
}

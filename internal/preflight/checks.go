package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"showrunner/internal/config"
	"showrunner/internal/deps"
	"showrunner/internal/services/llm"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid. It
// uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable/searchable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckVoiceModel verifies the configured piper voice model file is present.
func CheckVoiceModel(path string) Result {
	const name = "TTS voice"
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Result{Name: name, Detail: "voice model not configured (set tts.voice_path)"}
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", trimmed)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", trimmed, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", trimmed)}
	}
	if info.Size() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: empty file)", trimmed)}
	}
	return Result{Name: name, Passed: true, Detail: trimmed}
}

// CheckSystemDeps evaluates the external binaries the pipeline stages shell
// out to. Both the daemon and the CLI status command use this list. The LLM
// check is separate because it performs a network call.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.YtDlpBinary(),
			Description: "Required for media extraction from URLs",
		},
		{
			Name:        "uvx",
			Command:     cfg.UvxBinary(),
			Description: "Required for whisperx-driven transcription",
		},
		{
			Name:        "piper",
			Command:     cfg.PiperBinary(),
			Description: "Required for voiceover synthesis",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for clip extraction and compilation",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
	}
	return deps.CheckBinaries(requirements)
}

// summarizeLLMError produces a human-readable summary for LLM health check
// failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}

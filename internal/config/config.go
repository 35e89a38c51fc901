package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	LibraryDir   string `toml:"library_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
}

// Engine contains execution engine tunables.
type Engine struct {
	// StageTimeout bounds a single stage invocation in seconds; 0 disables
	// the timeout.
	StageTimeout int `toml:"stage_timeout"`
	// HeartbeatInterval is how often, in seconds, a running stage refreshes
	// the session row.
	HeartbeatInterval int `toml:"heartbeat_interval"`
	// EventBufferSize is the per-subscriber progress buffer length.
	EventBufferSize int `toml:"event_buffer_size"`
}

// Media contains configuration for source media acquisition.
type Media struct {
	Format          string `toml:"format"`
	RateLimit       string `toml:"rate_limit"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// Transcription contains configuration for speech-to-text.
type Transcription struct {
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	CacheDir    string `toml:"cache_dir"`
}

// LLM contains connection settings for the analysis and narrative models.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains configuration for voiceover synthesis.
type TTS struct {
	VoicePath   string  `toml:"voice_path"`
	LengthScale float64 `toml:"length_scale"`
}

// Clips contains configuration for highlight clip extraction.
type Clips struct {
	MaxCount       int     `toml:"max_count"`
	PaddingSeconds float64 `toml:"padding_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
	Interrupted    bool   `toml:"interrupted"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for showrunner.
//
// Configuration sections by subsystem:
//   - Paths: workspace/library/log directories and API bind address
//   - Engine: stage timeout, heartbeat, and progress buffer sizing
//   - Media: yt-dlp download settings
//   - Transcription: whisperx model selection
//   - LLM: shared connection settings for analysis and narrative stages
//   - TTS: piper voice settings
//   - Clips: highlight extraction limits
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Media         Media         `toml:"media"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Clips         Clips         `toml:"clips"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/showrunner/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("showrunner.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	if strings.TrimSpace(c.Transcription.CacheDir) != "" {
		if err := os.MkdirAll(c.Transcription.CacheDir, 0o755); err != nil {
			return fmt.Errorf("create transcription cache directory %q: %w", c.Transcription.CacheDir, err)
		}
	}
	return nil
}

// YtDlpBinary returns the media downloader executable name.
func (c *Config) YtDlpBinary() string {
	return "yt-dlp"
}

// UvxBinary returns the uv tool-runner executable used to launch whisperx.
func (c *Config) UvxBinary() string {
	return "uvx"
}

// PiperBinary returns the speech synthesis executable name.
func (c *Config) PiperBinary() string {
	return "piper"
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the connection settings handed to the LLM client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	if err := c.normalizeLLM(); err != nil {
		return err
	}
	if err := c.normalizeTTS(); err != nil {
		return err
	}
	c.normalizeMedia()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTranscription() error {
	var err error
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if strings.TrimSpace(c.Transcription.CacheDir) == "" {
		c.Transcription.CacheDir = defaultWhisperCacheDir
	}
	if c.Transcription.CacheDir, err = expandPath(c.Transcription.CacheDir); err != nil {
		return fmt.Errorf("transcription.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() error {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeTTS() error {
	var err error
	if c.TTS.VoicePath, err = expandPath(c.TTS.VoicePath); err != nil {
		return fmt.Errorf("tts.voice_path: %w", err)
	}
	if c.TTS.LengthScale <= 0 {
		c.TTS.LengthScale = defaultTTSLengthScale
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.Format = strings.TrimSpace(c.Media.Format)
	if c.Media.Format == "" {
		c.Media.Format = defaultMediaFormat
	}
	c.Media.RateLimit = strings.TrimSpace(c.Media.RateLimit)
	if c.Media.DownloadTimeout <= 0 {
		c.Media.DownloadTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

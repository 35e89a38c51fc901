package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateClips(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkspaceDir == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.StageTimeout < 0 {
		return errors.New("engine.stage_timeout must be >= 0 (seconds, 0 disables)")
	}
	if c.Engine.HeartbeatInterval <= 0 {
		return errors.New("engine.heartbeat_interval must be positive")
	}
	if c.Engine.EventBufferSize <= 0 {
		return errors.New("engine.event_buffer_size must be positive")
	}
	if err := ensurePositiveMap(map[string]int{
		"media.download_timeout": c.Media.DownloadTimeout,
		"llm.timeout_seconds":    c.LLM.TimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateClips() error {
	if c.Clips.MaxCount < 1 {
		return errors.New("clips.max_count must be >= 1")
	}
	if c.Clips.PaddingSeconds < 0 {
		return errors.New("clips.padding_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

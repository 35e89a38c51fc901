package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Config captures runtime settings for voiceover synthesis.
type Config struct {
	// VoicePath is the piper .onnx voice model.
	VoicePath string
	// LengthScale stretches phoneme durations; 1.0 is the voice default.
	LengthScale float64
}

// Service wraps the piper speech synthesizer. Piper reads the text to speak
// on stdin and writes a WAV file.
type Service struct {
	cfg           Config
	binary        string
	commandRunner func(ctx context.Context, stdin string, name string, args ...string) error
}

// NewService creates a synthesis service with the given configuration.
func NewService(cfg Config, binary string) *Service {
	if binary == "" {
		binary = "piper"
	}
	return &Service{cfg: cfg, binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing). The stdin
// argument carries the text piper would read.
func (s *Service) WithCommandRunner(runner func(ctx context.Context, stdin string, name string, args ...string) error) {
	s.commandRunner = runner
}

// VoicePath returns the configured voice model path for preflight checks.
func (s *Service) VoicePath() string {
	return s.cfg.VoicePath
}

// Synthesize renders text into a WAV file at dest.
func (s *Service) Synthesize(ctx context.Context, text, dest string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("synthesize: text required")
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("synthesize: destination path required")
	}
	if s.cfg.VoicePath == "" {
		return fmt.Errorf("synthesize: voice model path required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("synthesize: ensure dest dir: %w", err)
	}

	args := []string{
		"--model", s.cfg.VoicePath,
		"--output_file", dest,
	}
	if s.cfg.LengthScale > 0 {
		args = append(args, "--length_scale", strconv.FormatFloat(s.cfg.LengthScale, 'f', -1, 64))
	}

	if err := s.run(ctx, text, s.binary, args...); err != nil {
		return fmt.Errorf("piper: %w", err)
	}
	return nil
}

func (s *Service) run(ctx context.Context, stdin string, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, stdin, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = strings.NewReader(stdin)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

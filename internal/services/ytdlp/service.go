package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultFormat asks for the best muxed MP4 so downstream stages can rely on
// a single media file.
const DefaultFormat = "bestvideo*+bestaudio/best"

// Config captures runtime settings for media downloads.
type Config struct {
	// Format is the yt-dlp format selector.
	Format string
	// RateLimit throttles the download (yt-dlp --limit-rate syntax, e.g. "4M").
	RateLimit string
	// DownloadTimeout bounds one download in seconds; 0 disables the bound.
	DownloadTimeout int
}

// Service wraps the yt-dlp downloader.
type Service struct {
	cfg           Config
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a downloader service with the given configuration.
func NewService(cfg Config, binary string) *Service {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Service{cfg: cfg, binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Download fetches the source URL into dest. The destination directory is
// created if missing and yt-dlp is asked to remux into the container dest's
// extension names.
func (s *Service) Download(ctx context.Context, sourceURL, dest string) error {
	if strings.TrimSpace(sourceURL) == "" {
		return fmt.Errorf("download: source url required")
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("download: destination path required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("download: ensure destination dir: %w", err)
	}

	if s.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.DownloadTimeout)*time.Second)
		defer cancel()
	}

	args := s.buildArgs(sourceURL, dest)
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

func (s *Service) buildArgs(sourceURL, dest string) []string {
	format := s.cfg.Format
	if format == "" {
		format = DefaultFormat
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"-f", format,
		"-o", dest,
	}
	if ext := strings.TrimPrefix(filepath.Ext(dest), "."); ext != "" {
		args = append(args, "--remux-video", ext)
	}
	if s.cfg.RateLimit != "" {
		args = append(args, "--limit-rate", s.cfg.RateLimit)
	}
	return append(args, sourceURL)
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

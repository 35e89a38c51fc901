package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Service wraps ffmpeg and ffprobe for the clip extraction and compilation
// stages.
type Service struct {
	ffmpegBinary  string
	ffprobeBinary string
	commandRunner func(ctx context.Context, name string, args ...string) error
	outputRunner  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates an ffmpeg service using the given binaries.
func NewService(ffmpegBinary, ffprobeBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Service{ffmpegBinary: ffmpegBinary, ffprobeBinary: ffprobeBinary}
}

// WithCommandRunner sets a custom runner for commands whose output is
// discarded (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// WithOutputRunner sets a custom runner for commands whose stdout is parsed
// (for testing).
func (s *Service) WithOutputRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.outputRunner = runner
}

// ProbeResult describes a media file as reported by ffprobe.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	HasAudio        bool
	HasVideo        bool
}

type probePayload struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe inspects a media file with ffprobe.
func (s *Service) Probe(ctx context.Context, path string) (ProbeResult, error) {
	var result ProbeResult
	if strings.TrimSpace(path) == "" {
		return result, fmt.Errorf("probe: path required")
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	output, err := s.runOutput(ctx, s.ffprobeBinary, args...)
	if err != nil {
		return result, fmt.Errorf("ffprobe: %w", err)
	}

	var payload probePayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return result, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	if payload.Format.Duration != "" {
		if seconds, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			result.DurationSeconds = seconds
		}
	}
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			result.HasVideo = true
			if stream.Width > result.Width {
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			result.HasAudio = true
		}
	}
	return result, nil
}

// Cut copies a time range out of source without re-encoding.
func (s *Service) Cut(ctx context.Context, source string, startSec, durationSec float64, dest string) error {
	if durationSec <= 0 {
		return fmt.Errorf("cut: invalid duration %v", durationSec)
	}
	if startSec < 0 {
		startSec = 0
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("cut: ensure dest dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", source,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg cut: %w", err)
	}
	return nil
}

// Concat joins sources into dest using the concat demuxer (stream copy). The
// list file lands next to dest and is removed afterwards.
func (s *Service) Concat(ctx context.Context, sources []string, dest string) error {
	if len(sources) == 0 {
		return fmt.Errorf("concat: at least one source required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("concat: ensure dest dir: %w", err)
	}

	listPath := dest + ".concat.txt"
	var list strings.Builder
	for _, source := range sources {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(source, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("concat: write list file: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return nil
}

// MergeAudio lays an audio track over a video, keeping the video stream
// untouched and ending at the shorter input.
func (s *Service) MergeAudio(ctx context.Context, video, audio, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("merge audio: ensure dest dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg merge audio: %w", err)
	}
	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
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

func (s *Service) runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.outputRunner != nil {
		return s.outputRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

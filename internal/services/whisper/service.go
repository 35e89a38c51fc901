package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Config captures runtime settings for whisperx transcription.
type Config struct {
	// Model is the whisperx model to use (e.g. "large-v3-turbo").
	Model string
	// Language is a two-letter hint; empty means autodetect.
	Language string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// CacheDir holds downloaded model weights between runs.
	CacheDir string
}

// Transcription configuration constants.
const (
	DefaultModel      = "large-v3-turbo"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	SegmentResolution = "sentence"
	OutputFormat      = "all"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
)

// Service runs whisperx through uvx and prepares audio with ffmpeg.
type Service struct {
	cfg           Config
	uvxBinary     string
	ffmpegBinary  string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg Config, uvxBinary, ffmpegBinary string) *Service {
	if uvxBinary == "" {
		uvxBinary = "uvx"
	}
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Service{cfg: cfg, uvxBinary: uvxBinary, ffmpegBinary: ffmpegBinary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the effective model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// ExtractAudio writes a mono 16kHz WAV copy of source's audio, the input
// format whisperx expects.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" {
		return fmt.Errorf("extract audio: source path required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract audio: ensure dest dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract: %w", err)
	}
	return nil
}

// Result contains the artifacts of one transcription.
type Result struct {
	// Text is the concatenated plain-text transcript.
	Text string
	// JSONPath is the whisperx JSON output with word timings.
	JSONPath string
	// SRTPath is the generated subtitle file.
	SRTPath string
}

// Transcribe runs whisperx over a WAV file and returns the output artifact
// paths. outputDir defaults to the source's directory.
func (s *Service) Transcribe(ctx context.Context, source, outputDir string) (Result, error) {
	var result Result

	if source == "" {
		return result, fmt.Errorf("transcribe: source path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if err := s.run(ctx, s.uvxBinary, s.buildArgs(source, outputDir)...); err != nil {
		return result, fmt.Errorf("whisperx: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	result.JSONPath = filepath.Join(outputDir, baseName+".json")
	result.SRTPath = filepath.Join(outputDir, baseName+".srt")

	text, err := loadTranscriptText(result.JSONPath)
	if err != nil {
		return result, fmt.Errorf("transcribe: read output: %w", err)
	}
	result.Text = text
	return result, nil
}

func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 24)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
	)

	if s.cfg.CacheDir != "" {
		args = append(args, "--model_dir", s.cfg.CacheDir)
	}
	if lang := strings.TrimSpace(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking
	// whisperx/pyannote checkpoint loading.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Word is a single word with timing from whisperx output.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one transcribed segment from whisperx JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

type transcriptPayload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a whisperx JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload transcriptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}

func loadTranscriptText(jsonPath string) (string, error) {
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

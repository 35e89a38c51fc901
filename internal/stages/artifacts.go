package stages

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"showrunner/internal/services/whisper"
)

// Transcript is the canonical transcription artifact
// (transcripts/transcript.json).
type Transcript struct {
	Text     string            `json:"text"`
	Segments []whisper.Segment `json:"segments"`
}

// Highlight is one moment the analysis model selected for clipping.
type Highlight struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Summary      string  `json:"summary"`
}

// Analysis is the content analysis artifact (analysis/analysis.json).
type Analysis struct {
	Summary    string      `json:"summary"`
	Topics     []string    `json:"topics"`
	Highlights []Highlight `json:"highlights"`
}

// Narrative is the narrative generation artifact (narrative/narrative.json).
type Narrative struct {
	Title  string `json:"title"`
	Script string `json:"script"`
}

// Clip is one extracted highlight in the clip manifest.
type Clip struct {
	Index        int     `json:"index"`
	File         string  `json:"file"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Summary      string  `json:"summary,omitempty"`
}

// Manifest is the clip extraction artifact (clips/manifest.json).
type Manifest struct {
	Source string `json:"source"`
	Clips  []Clip `json:"clips"`
}

func writeArtifact(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure artifact dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readArtifact(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

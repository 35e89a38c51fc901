package stage

import (
	"fmt"

	"showrunner/internal/services"
)

// Definition describes one unit of work in the fixed pipeline order.
type Definition struct {
	// Index is the 1-based position in the pipeline; the registry keeps
	// definitions sorted by it.
	Index int
	// Name is the stable identifier used in state records and events.
	Name string
	// SkippableIfOutputExists marks stages whose existing output short-circuits
	// re-execution.
	SkippableIfOutputExists bool
	// InputKind and OutputKind describe the data handoff for humans and logs;
	// the engine does not interpret them.
	InputKind  string
	OutputKind string
	// OutputPath is the workspace-relative location the stage's artifact lands
	// at, used for skip detection.
	OutputPath string
}

// Pipeline stage indices. The order is fixed; selections subset it.
const (
	MediaExtraction = iota + 1
	Transcription
	ContentAnalysis
	NarrativeGeneration
	SpeechSynthesis
	ClipExtraction
	Compilation
)

var definitions = []Definition{
	{
		Index:                   MediaExtraction,
		Name:                    "media_extraction",
		SkippableIfOutputExists: true,
		InputKind:               "source_url",
		OutputKind:              "media_file_path",
		OutputPath:              "media/source.mp4",
	},
	{
		Index:                   Transcription,
		Name:                    "transcription",
		SkippableIfOutputExists: true,
		InputKind:               "media_file_path",
		OutputKind:              "transcript_file_path",
		OutputPath:              "transcripts/transcript.json",
	},
	{
		Index:                   ContentAnalysis,
		Name:                    "content_analysis",
		SkippableIfOutputExists: true,
		InputKind:               "transcript_file_path",
		OutputKind:              "analysis_file_path",
		OutputPath:              "analysis/analysis.json",
	},
	{
		Index:                   NarrativeGeneration,
		Name:                    "narrative_generation",
		SkippableIfOutputExists: true,
		InputKind:               "analysis_file_path",
		OutputKind:              "narrative_file_path",
		OutputPath:              "narrative/narrative.json",
	},
	{
		Index:                   SpeechSynthesis,
		Name:                    "speech_synthesis",
		SkippableIfOutputExists: true,
		InputKind:               "narrative_file_path",
		OutputKind:              "voiceover_file_path",
		OutputPath:              "voiceover/voiceover.wav",
	},
	{
		Index:                   ClipExtraction,
		Name:                    "clip_extraction",
		SkippableIfOutputExists: true,
		InputKind:               "voiceover_file_path",
		OutputKind:              "clip_manifest_path",
		OutputPath:              "clips/manifest.json",
	},
	{
		Index:                   Compilation,
		Name:                    "compilation",
		SkippableIfOutputExists: false,
		InputKind:               "clip_manifest_path",
		OutputKind:              "episode_file_path",
		OutputPath:              "final/episode.mp4",
	},
}

// Count returns the number of registered stages.
func Count() int {
	return len(definitions)
}

// Definitions returns the full registry in pipeline order. The returned slice
// is a copy; callers may not mutate the registry.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// ByIndex looks up a stage definition by its 1-based index.
func ByIndex(index int) (Definition, bool) {
	if index < 1 || index > len(definitions) {
		return Definition{}, false
	}
	return definitions[index-1], true
}

// ByName looks up a stage definition by its stable name.
func ByName(name string) (Definition, bool) {
	for _, def := range definitions {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// NameFor returns the stable name for an index, or a numeric placeholder for
// indices outside the registry.
func NameFor(index int) string {
	if def, ok := ByIndex(index); ok {
		return def.Name
	}
	return fmt.Sprintf("stage_%d", index)
}

// AllIndices returns every registered stage index in order.
func AllIndices() []int {
	out := make([]int, len(definitions))
	for i, def := range definitions {
		out[i] = def.Index
	}
	return out
}

// ValidateSelection checks a requested stage selection against the registry:
// indices must be known, strictly increasing, and free of duplicates. Gaps are
// legal; HasGaps reports them so callers can emit a warning, since the engine
// cannot statically verify that a later stage's input exists when its
// predecessor is not selected.
func ValidateSelection(selected []int) (hasGaps bool, err error) {
	if len(selected) == 0 {
		return false, services.Wrap(services.ErrValidation, "", "validate selection", "no stages selected", nil)
	}
	prev := 0
	for _, index := range selected {
		if _, ok := ByIndex(index); !ok {
			return false, services.Wrap(services.ErrValidation, "", "validate selection",
				fmt.Sprintf("stage index %d out of range 1..%d", index, len(definitions)), nil)
		}
		if index == prev {
			return false, services.Wrap(services.ErrValidation, "", "validate selection",
				fmt.Sprintf("duplicate stage index %d", index), nil)
		}
		if index < prev {
			return false, services.Wrap(services.ErrValidation, "", "validate selection",
				fmt.Sprintf("stage indices must be strictly increasing (%d after %d)", index, prev), nil)
		}
		if prev != 0 && index != prev+1 {
			hasGaps = true
		}
		prev = index
	}
	return hasGaps, nil
}

package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"showrunner/internal/fileutil"
	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// compilation concatenates the extracted clips, lays the voiceover over the
// result, and publishes the episode into the library directory. Never
// skippable: the final artifact must always be rebuilt from current inputs.
func (r *runner) compilation(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}

	manifestPath := req.Input
	if _, statErr := os.Stat(manifestPath); statErr != nil {
		discovered, ok := ws.DiscoverOutput(outputPath(stage.ClipExtraction))
		if !ok {
			return "", fmt.Errorf("clip manifest unavailable: %w", statErr)
		}
		manifestPath = discovered
	}

	var manifest Manifest
	if err := readArtifact(manifestPath, &manifest); err != nil {
		return "", fmt.Errorf("read clip manifest: %w", err)
	}
	if len(manifest.Clips) == 0 {
		return "", fmt.Errorf("clip manifest is empty")
	}

	sources := make([]string, 0, len(manifest.Clips))
	for _, clip := range manifest.Clips {
		if _, statErr := os.Stat(clip.File); statErr != nil {
			return "", fmt.Errorf("clip %d unavailable: %w", clip.Index, statErr)
		}
		sources = append(sources, clip.File)
	}

	dest := ws.Path(outputPath(stage.Compilation))
	assembled := ws.Path("final/assembled.mp4")
	if err := r.deps.Media.Concat(ctx, sources, assembled); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "compilation", "concat", "", err)
	}
	defer os.Remove(assembled)

	if voiceover, ok := ws.DiscoverOutput(outputPath(stage.SpeechSynthesis)); ok {
		if err := r.deps.Media.MergeAudio(ctx, assembled, voiceover, dest); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "compilation", "merge audio", "", err)
		}
	} else {
		if err := fileutil.CopyFile(assembled, dest); err != nil {
			return "", fmt.Errorf("place final episode: %w", err)
		}
	}

	if libraryDir := strings.TrimSpace(r.cfg.Paths.LibraryDir); libraryDir != "" {
		published := filepath.Join(libraryDir, ws.Slug+".mp4")
		if err := os.MkdirAll(libraryDir, 0o755); err != nil {
			return "", fmt.Errorf("ensure library dir: %w", err)
		}
		if err := fileutil.CopyFileVerified(dest, published); err != nil {
			return "", fmt.Errorf("publish episode: %w", err)
		}
		r.logger.Info("published episode",
			logging.String(logging.FieldSessionID, req.SessionID),
			logging.String("library_file", published),
		)
	}

	return dest, nil
}

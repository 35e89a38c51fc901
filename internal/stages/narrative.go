package stages

import (
	"context"
	"fmt"
	"os"
	"strings"

	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/services/llm"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// narrativeGeneration turns the analysis into an episode title and voiceover
// script, producing narrative/narrative.json.
func (r *runner) narrativeGeneration(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}

	analysisJSON, err := os.ReadFile(req.Input)
	if err != nil {
		return "", fmt.Errorf("read analysis: %w", err)
	}

	r.logger.Info("generating narrative",
		logging.String(logging.FieldSessionID, req.SessionID),
	)
	content, err := r.deps.Completer.CompleteJSON(ctx, narrativeSystemPrompt, string(analysisJSON))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "narrative_generation", "llm complete", "", err)
	}

	var narrative Narrative
	if err := llm.DecodeJSON(content, &narrative); err != nil {
		return "", fmt.Errorf("decode narrative payload: %w", err)
	}
	if strings.TrimSpace(narrative.Script) == "" {
		return "", fmt.Errorf("narrative payload missing script")
	}
	if strings.TrimSpace(narrative.Title) == "" {
		narrative.Title = ws.DisplayTitle()
	}

	dest := ws.Path(outputPath(stage.NarrativeGeneration))
	if err := writeArtifact(dest, narrative); err != nil {
		return "", err
	}
	return dest, nil
}

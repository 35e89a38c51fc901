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

// contentAnalysis asks the LLM to summarize the transcript and pick
// highlight moments, producing analysis/analysis.json.
func (r *runner) contentAnalysis(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}

	transcriptJSON, err := os.ReadFile(req.Input)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	r.logger.Info("analyzing transcript",
		logging.String(logging.FieldSessionID, req.SessionID),
	)
	content, err := r.deps.Completer.CompleteJSON(ctx, analysisSystemPrompt, string(transcriptJSON))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "content_analysis", "llm complete", "", err)
	}

	var analysis Analysis
	if err := llm.DecodeJSON(content, &analysis); err != nil {
		return "", fmt.Errorf("decode analysis payload: %w", err)
	}
	if err := validateAnalysis(&analysis); err != nil {
		return "", err
	}

	dest := ws.Path(outputPath(stage.ContentAnalysis))
	if err := writeArtifact(dest, analysis); err != nil {
		return "", err
	}
	return dest, nil
}

func validateAnalysis(analysis *Analysis) error {
	if strings.TrimSpace(analysis.Summary) == "" {
		return fmt.Errorf("analysis payload missing summary")
	}
	if len(analysis.Highlights) == 0 {
		return fmt.Errorf("analysis payload has no highlights")
	}
	prevEnd := -1.0
	for i, h := range analysis.Highlights {
		if h.EndSeconds <= h.StartSeconds {
			return fmt.Errorf("highlight %d has non-positive duration (%v..%v)", i, h.StartSeconds, h.EndSeconds)
		}
		if h.StartSeconds < prevEnd {
			return fmt.Errorf("highlight %d overlaps its predecessor", i)
		}
		prevEnd = h.EndSeconds
	}
	return nil
}

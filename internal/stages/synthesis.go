package stages

import (
	"context"
	"fmt"

	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// speechSynthesis renders the narrative script to voiceover/voiceover.wav.
func (r *runner) speechSynthesis(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}

	var narrative Narrative
	if err := readArtifact(req.Input, &narrative); err != nil {
		return "", fmt.Errorf("read narrative: %w", err)
	}

	dest := ws.Path(outputPath(stage.SpeechSynthesis))
	r.logger.Info("synthesizing voiceover",
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.String("title", narrative.Title),
	)
	if err := r.deps.Synthesizer.Synthesize(ctx, narrative.Script, dest); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "speech_synthesis", "piper", "", err)
	}
	if _, ok := ws.DiscoverOutput(outputPath(stage.SpeechSynthesis)); !ok {
		return "", fmt.Errorf("synthesis finished but %s is missing or empty", dest)
	}
	return dest, nil
}

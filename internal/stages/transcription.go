package stages

import (
	"context"
	"fmt"
	"os"

	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/services/whisper"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// transcription extracts a whisper-ready audio track from the media file,
// runs whisperx, and writes the canonical transcript artifact.
func (r *runner) transcription(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(req.Input); statErr != nil {
		return "", fmt.Errorf("media file unavailable: %w", statErr)
	}

	audioPath := ws.Path("transcripts/audio.wav")
	if err := r.deps.Transcriber.ExtractAudio(ctx, req.Input, audioPath); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcription", "extract audio", "", err)
	}

	r.logger.Info("transcribing audio",
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.String("audio", audioPath),
	)
	result, err := r.deps.Transcriber.Transcribe(ctx, audioPath, ws.Path("transcripts"))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcription", "whisperx", "", err)
	}

	segments, err := whisper.LoadSegments(result.JSONPath)
	if err != nil {
		return "", fmt.Errorf("load transcription segments: %w", err)
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("transcription produced no segments")
	}

	dest := ws.Path(outputPath(stage.Transcription))
	if err := writeArtifact(dest, Transcript{Text: result.Text, Segments: segments}); err != nil {
		return "", err
	}
	return dest, nil
}

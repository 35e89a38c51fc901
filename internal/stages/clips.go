package stages

import (
	"context"
	"fmt"

	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// clipExtraction cuts the analysis highlights out of the source media and
// writes clips/manifest.json. The incoming output ref is the voiceover; the
// cut source and highlight list are located through the workspace because
// they were produced by earlier stages.
func (r *runner) clipExtraction(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}

	source, ok := ws.DiscoverOutput(outputPath(stage.MediaExtraction))
	if !ok {
		return "", fmt.Errorf("source media missing; run media_extraction first")
	}
	analysisPath, ok := ws.DiscoverOutput(outputPath(stage.ContentAnalysis))
	if !ok {
		return "", fmt.Errorf("analysis missing; run content_analysis first")
	}

	var analysis Analysis
	if err := readArtifact(analysisPath, &analysis); err != nil {
		return "", fmt.Errorf("read analysis: %w", err)
	}
	if len(analysis.Highlights) == 0 {
		return "", fmt.Errorf("analysis has no highlights to extract")
	}

	probe, err := r.deps.Media.Probe(ctx, source)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "clip_extraction", "probe", "", err)
	}

	highlights := analysis.Highlights
	if max := r.cfg.Clips.MaxCount; max > 0 && len(highlights) > max {
		highlights = highlights[:max]
	}
	padding := r.cfg.Clips.PaddingSeconds

	manifest := Manifest{Source: source}
	for i, h := range highlights {
		start := h.StartSeconds - padding
		if start < 0 {
			start = 0
		}
		end := h.EndSeconds + padding
		if probe.DurationSeconds > 0 && end > probe.DurationSeconds {
			end = probe.DurationSeconds
		}
		if end <= start {
			continue
		}

		clipPath := ws.Path(fmt.Sprintf("clips/clip_%03d.mp4", i+1))
		if err := r.deps.Media.Cut(ctx, source, start, end-start, clipPath); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "clip_extraction", "cut", "", err)
		}
		manifest.Clips = append(manifest.Clips, Clip{
			Index:        i + 1,
			File:         clipPath,
			StartSeconds: start,
			EndSeconds:   end,
			Summary:      h.Summary,
		})
	}
	if len(manifest.Clips) == 0 {
		return "", fmt.Errorf("no usable highlights within media duration %vs", probe.DurationSeconds)
	}

	r.logger.Info("extracted clips",
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.Int("clip_count", len(manifest.Clips)),
	)

	dest := ws.Path(outputPath(stage.ClipExtraction))
	if err := writeArtifact(dest, manifest); err != nil {
		return "", err
	}
	return dest, nil
}

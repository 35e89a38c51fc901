package stages

import (
	"context"
	"fmt"
	"os"

	"showrunner/internal/fileutil"
	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// mediaExtraction turns the session's source input into media/source.mp4.
// Local files are copied with checksum verification; anything else is handed
// to yt-dlp as a URL.
func (r *runner) mediaExtraction(ctx context.Context, req stage.Request) (string, error) {
	ws, err := workspace.Open(req.WorkspaceRoot)
	if err != nil {
		return "", err
	}
	dest := ws.Path(outputPath(stage.MediaExtraction))

	if info, statErr := os.Stat(req.Input); statErr == nil && info.Mode().IsRegular() && info.Size() > 0 {
		r.logger.Info("copying local source media",
			logging.String(logging.FieldSessionID, req.SessionID),
			logging.String("source", req.Input),
		)
		if err := fileutil.CopyFileVerified(req.Input, dest); err != nil {
			return "", fmt.Errorf("copy source media: %w", err)
		}
		return dest, nil
	}

	r.logger.Info("downloading source media",
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.String("source", req.Input),
	)
	if err := r.deps.Downloader.Download(ctx, req.Input, dest); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "media_extraction", "download", "", err)
	}
	if _, ok := ws.DiscoverOutput(outputPath(stage.MediaExtraction)); !ok {
		return "", fmt.Errorf("download finished but %s is missing or empty", dest)
	}
	return dest, nil
}

func outputPath(index int) string {
	def, _ := stage.ByIndex(index)
	return def.OutputPath
}

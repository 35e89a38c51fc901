package preflight

import (
	"context"

	"showrunner/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir))
	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}

	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "LLM", cfg.GetLLM()))
	}

	results = append(results, CheckVoiceModel(cfg.TTS.VoicePath))

	return results
}

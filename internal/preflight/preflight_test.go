package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"showrunner/internal/preflight"
	"showrunner/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("Workspace directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for %s, got %+v", dir, result)
	}

	missing := filepath.Join(dir, "absent")
	result = preflight.CheckDirectoryAccess("Workspace directory", missing)
	if result.Passed {
		t.Fatalf("expected failure for missing dir, got %+v", result)
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("detail = %q", result.Detail)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	result = preflight.CheckDirectoryAccess("Workspace directory", file)
	if result.Passed {
		t.Fatalf("expected failure for file path, got %+v", result)
	}
}

func TestCheckVoiceModel(t *testing.T) {
	if result := preflight.CheckVoiceModel(""); result.Passed {
		t.Fatalf("expected failure for unset voice path, got %+v", result)
	}

	voice := filepath.Join(t.TempDir(), "voice.onnx")
	testsupport.WriteFile(t, voice, 128)
	result := preflight.CheckVoiceModel(voice)
	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}

	empty := filepath.Join(t.TempDir(), "empty.onnx")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	if result := preflight.CheckVoiceModel(empty); result.Passed {
		t.Fatalf("expected failure for empty voice model, got %+v", result)
	}
}

func TestCheckLLMRequiresKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	result := preflight.CheckLLM(context.Background(), "LLM", cfg.GetLLM())
	if result.Passed {
		t.Fatalf("expected failure without API key, got %+v", result)
	}
	if result.Detail != "API key missing" {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestRunAllCoversConfiguredChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := preflight.RunAll(context.Background(), cfg)
	names := make(map[string]bool, len(results))
	for _, result := range results {
		names[result.Name] = true
	}
	if !names["Workspace directory"] {
		t.Fatalf("missing workspace check in %+v", results)
	}
	if !names["TTS voice"] {
		t.Fatalf("missing voice check in %+v", results)
	}
}

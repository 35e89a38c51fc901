package tts_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"showrunner/internal/services/tts"
)

func TestSynthesizeBuildsExpectedCommand(t *testing.T) {
	var gotStdin, gotName string
	var gotArgs []string

	svc := tts.NewService(tts.Config{VoicePath: "/voices/narrator.onnx", LengthScale: 1.1}, "piper")
	svc.WithCommandRunner(func(ctx context.Context, stdin string, name string, args ...string) error {
		gotStdin = stdin
		gotName = name
		gotArgs = args
		return nil
	})

	dest := filepath.Join(t.TempDir(), "voiceover", "voiceover.wav")
	if err := svc.Synthesize(context.Background(), "Welcome to the show.", dest); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if gotName != "piper" {
		t.Fatalf("unexpected binary: %q", gotName)
	}
	if gotStdin != "Welcome to the show." {
		t.Fatalf("unexpected stdin: %q", gotStdin)
	}
	for _, want := range []string{"--model", "/voices/narrator.onnx", "--output_file", dest, "--length_scale", "1.1"} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("args missing %q: %v", want, gotArgs)
		}
	}
}

func TestSynthesizeValidatesInputs(t *testing.T) {
	svc := tts.NewService(tts.Config{VoicePath: "/voices/narrator.onnx"}, "")
	if err := svc.Synthesize(context.Background(), "  ", "/tmp/out.wav"); err == nil {
		t.Fatal("expected error for empty text")
	}
	if err := svc.Synthesize(context.Background(), "text", ""); err == nil {
		t.Fatal("expected error for empty destination")
	}

	noVoice := tts.NewService(tts.Config{}, "")
	if err := noVoice.Synthesize(context.Background(), "text", "/tmp/out.wav"); err == nil {
		t.Fatal("expected error without voice model")
	}
}

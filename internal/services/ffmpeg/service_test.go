package ffmpeg_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"showrunner/internal/services/ffmpeg"
)

func TestProbeParsesOutput(t *testing.T) {
	svc := ffmpeg.NewService("", "")
	svc.WithOutputRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffprobe" {
			t.Fatalf("unexpected binary: %q", name)
		}
		if !slices.Contains(args, "/media/source.mp4") {
			t.Fatalf("args missing source: %v", args)
		}
		return []byte(`{
			"format": {"duration": "3621.500000"},
			"streams": [
				{"codec_type": "video", "width": 1920, "height": 1080},
				{"codec_type": "audio"}
			]
		}`), nil
	})

	result, err := svc.Probe(context.Background(), "/media/source.mp4")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if result.DurationSeconds != 3621.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds)
	}
	if result.Width != 1920 || result.Height != 1080 {
		t.Fatalf("unexpected dimensions: %dx%d", result.Width, result.Height)
	}
	if !result.HasAudio || !result.HasVideo {
		t.Fatalf("stream flags wrong: %+v", result)
	}
}

func TestCutBuildsExpectedCommand(t *testing.T) {
	var gotArgs []string
	svc := ffmpeg.NewService("ffmpeg", "ffprobe")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		return nil
	})

	dest := filepath.Join(t.TempDir(), "clips", "clip_001.mp4")
	if err := svc.Cut(context.Background(), "/media/source.mp4", 12.5, 30, dest); err != nil {
		t.Fatalf("Cut failed: %v", err)
	}
	for _, want := range []string{"-ss", "12.500", "-t", "30.000", "/media/source.mp4", "copy", dest} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("args missing %q: %v", want, gotArgs)
		}
	}

	if err := svc.Cut(context.Background(), "/media/source.mp4", 0, 0, dest); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestConcatWritesListFile(t *testing.T) {
	var listContent string
	svc := ffmpeg.NewService("", "")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		i := slices.Index(args, "-i")
		if i < 0 {
			t.Fatalf("no -i in args: %v", args)
		}
		data, err := os.ReadFile(args[i+1])
		if err != nil {
			t.Fatalf("read list file: %v", err)
		}
		listContent = string(data)
		return nil
	})

	dest := filepath.Join(t.TempDir(), "final", "episode.mp4")
	sources := []string{"/clips/clip_001.mp4", "/clips/clip_002.mp4"}
	if err := svc.Concat(context.Background(), sources, dest); err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	for _, source := range sources {
		if !strings.Contains(listContent, source) {
			t.Fatalf("list file missing %q: %q", source, listContent)
		}
	}
	// The list file is temporary.
	if _, err := os.Stat(dest + ".concat.txt"); !os.IsNotExist(err) {
		t.Fatalf("list file should be removed, stat err: %v", err)
	}

	if err := svc.Concat(context.Background(), nil, dest); err == nil {
		t.Fatal("expected error for empty source list")
	}
}

func TestMergeAudioBuildsExpectedCommand(t *testing.T) {
	var gotArgs []string
	svc := ffmpeg.NewService("", "")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		return nil
	})

	dest := filepath.Join(t.TempDir(), "final", "episode.mp4")
	if err := svc.MergeAudio(context.Background(), "/final/video.mp4", "/voiceover/voiceover.wav", dest); err != nil {
		t.Fatalf("MergeAudio failed: %v", err)
	}
	for _, want := range []string{"/final/video.mp4", "/voiceover/voiceover.wav", "0:v:0", "1:a:0", "-shortest", dest} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("args missing %q: %v", want, gotArgs)
		}
	}
}

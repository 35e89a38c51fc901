package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"showrunner/internal/logs"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "showrunnerd.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "three" || result.Lines[1] != "four" {
		t.Fatalf("lines = %v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("expected non-zero resume offset")
	}
}

func TestTailResumeFromOffset(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")

	first, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0, Limit: 0})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(first.Lines) != 2 {
		t.Fatalf("first read = %v", first.Lines)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := file.WriteString("three\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	file.Close()

	second, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: first.Offset})
	if err != nil {
		t.Fatalf("Tail resume: %v", err)
	}
	if len(second.Lines) != 1 || second.Lines[0] != "three" {
		t.Fatalf("resumed lines = %v", second.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestTailFollowStopsAtDeadline(t *testing.T) {
	path := writeLog(t, "")

	start := time.Now()
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{
		Offset: 0,
		Follow: true,
		Wait:   300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("expected no lines, got %v", result.Lines)
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Fatalf("follow returned too early: %v", elapsed)
	}
}

func TestTailOffsetBeyondEOFClamps(t *testing.T) {
	path := writeLog(t, "one\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 4096})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("expected no lines, got %v", result.Lines)
	}
	if result.Offset != 4 {
		t.Fatalf("offset = %d, want 4", result.Offset)
	}
}

package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCarriesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).
		With(slog.String(FieldSessionID, "ses-9")).
		With(slog.String(FieldStage, "compilation"))

	logger.Info("stage tick", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.SessionID != "ses-9" {
		t.Errorf("expected session_id=ses-9, got %q", evt.SessionID)
	}
	if evt.Stage != "compilation" {
		t.Errorf("expected stage=compilation, got %q", evt.Stage)
	}
	if evt.Fields["extra"] != "value" {
		t.Errorf("expected extra field, got %v", evt.Fields)
	}
}

func TestStreamHandlerCallSiteOverrides(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldStage, "original"))
	logger.Info("message", slog.String(FieldStage, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Stage != "overridden" {
		t.Errorf("expected stage=overridden, got %q", events[0].Stage)
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	events, next := hub.Tail(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(events))
	}
	if events[0].Sequence != 3 || next != 5 {
		t.Fatalf("expected oldest seq 3 and next 5, got %d and %d", events[0].Sequence, next)
	}
	if hub.FirstSequence() != 3 {
		t.Fatalf("expected first sequence 3, got %d", hub.FirstSequence())
	}
}

func TestStreamHubFetchWaits(t *testing.T) {
	hub := NewStreamHub(16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		events, _, err := hub.Fetch(context.Background(), 0, 10, true)
		if err != nil {
			t.Errorf("fetch: %v", err)
			return
		}
		if len(events) != 1 || events[0].Message != "wake" {
			t.Errorf("unexpected events: %+v", events)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wake"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never woke")
	}
}

func TestStreamHubFetchHonorsContext(t *testing.T) {
	hub := NewStreamHub(16)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Error("expected base handler when hub is nil")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"showrunner/internal/notifications"
	"showrunner/internal/testsupport"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCapturingServer(t *testing.T, out *[]captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*out = append(*out, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNoopWhenUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := notifications.NewService(cfg)
	if err := svc.NotifySessionCompleted(context.Background(), "Title", ""); err != nil {
		t.Fatalf("noop service returned error: %v", err)
	}
}

func TestSessionCompletedPublishes(t *testing.T) {
	var requests []captured
	server := newCapturingServer(t, &requests)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	if err := svc.NotifySessionCompleted(context.Background(), "Great Talk", "/library/episode.mp4"); err != nil {
		t.Fatalf("NotifySessionCompleted failed: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requests))
	}
	got := requests[0]
	if !strings.Contains(got.body, "Great Talk") || !strings.Contains(got.body, "/library/episode.mp4") {
		t.Fatalf("unexpected body: %q", got.body)
	}
	if got.priority != "high" {
		t.Fatalf("unexpected priority: %q", got.priority)
	}
}

func TestSessionFailedRespectsToggle(t *testing.T) {
	var requests []captured
	server := newCapturingServer(t, &requests)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Failed = false
	svc := notifications.NewService(cfg)

	if err := svc.NotifySessionFailed(context.Background(), "Great Talk", "transcription", errors.New("boom")); err != nil {
		t.Fatalf("NotifySessionFailed failed: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("expected no requests with failed notifications disabled, got %d", len(requests))
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from failing endpoint")
	}
}

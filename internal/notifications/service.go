package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"showrunner/internal/config"
)

const userAgent = "Showrunner-Go/0.1.0"

// Service defines the notification surface exposed to the execution engine.
type Service interface {
	NotifySessionCompleted(ctx context.Context, title, finalFile string) error
	NotifySessionFailed(ctx context.Context, title, stageName string, err error) error
	NotifySessionInterrupted(ctx context.Context, title string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completed:   cfg.Notifications.Completed,
		failed:      cfg.Notifications.Failed,
		interrupted: cfg.Notifications.Interrupted,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completed   bool
	failed      bool
	interrupted bool
}

func (n *ntfyService) NotifySessionCompleted(ctx context.Context, title, finalFile string) error {
	if !n.completed {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Episode ready: %s", title)
	if finalFile = strings.TrimSpace(finalFile); finalFile != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, finalFile)
	}
	data := payload{
		title:    "Showrunner - Complete",
		message:  message,
		tags:     []string{"showrunner", "session", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionFailed(ctx context.Context, title, stageName string, err error) error {
	if !n.failed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Pipeline failed")
	if title = strings.TrimSpace(title); title != "" {
		builder.WriteString(" for ")
		builder.WriteString(title)
	}
	if stageName = strings.TrimSpace(stageName); stageName != "" {
		builder.WriteString(" at ")
		builder.WriteString(stageName)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown error")
	}

	data := payload{
		title:    "Showrunner - Failed",
		message:  builder.String(),
		tags:     []string{"showrunner", "session", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionInterrupted(ctx context.Context, title string) error {
	if !n.interrupted {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Showrunner - Stopped",
		message: fmt.Sprintf("Pipeline stopped: %s", title),
		tags:    []string{"showrunner", "session", "interrupted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Showrunner - Test",
		message:  "Notification system test",
		tags:     []string{"showrunner", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySessionCompleted(context.Context, string, string) error     { return nil }
func (noopService) NotifySessionFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifySessionInterrupted(context.Context, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }

package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"showrunner/internal/services/llm"
)

func newClient(serverURL string, opts ...llm.Option) *llm.Client {
	base := []llm.Option{
		llm.WithRetryBackoff(time.Millisecond, 5*time.Millisecond),
		llm.WithSleeper(func(time.Duration) {}),
	}
	return llm.NewClient(llm.Config{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "test/model",
	}, append(base, opts...)...)
}

func TestCompleteJSONSuccess(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"topic\":\"go\"}"}}]}`))
	}))
	t.Cleanup(server.Close)

	content, err := newClient(server.URL).CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if !strings.Contains(content, "topic") {
		t.Fatalf("unexpected content: %q", content)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestCompleteJSONRequiresPrompts(t *testing.T) {
	client := newClient("http://127.0.0.1:0")
	if _, err := client.CompleteJSON(context.Background(), "", "user"); err == nil {
		t.Fatal("expected error for empty system prompt")
	}
	if _, err := client.CompleteJSON(context.Background(), "system", ""); err == nil {
		t.Fatal("expected error for empty user prompt")
	}
}

func TestCompleteJSONRetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	t.Cleanup(server.Close)

	if _, err := newClient(server.URL).CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCompleteJSONDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	if _, err := newClient(server.URL).CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("400 should not be retried, got %d attempts", calls.Load())
	}
}

func TestCompleteJSONRetriesEmptyContent(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	t.Cleanup(server.Close)

	if _, err := newClient(server.URL).CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestCompleteJSONDeltaFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"delta":{"content":"{\"via\":\"delta\"}"}}]}`))
	}))
	t.Cleanup(server.Close)

	content, err := newClient(server.URL).CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if !strings.Contains(content, "delta") {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	t.Cleanup(server.Close)

	if err := newClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	noKey := llm.NewClient(llm.Config{BaseURL: server.URL})
	if err := noKey.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "plain", payload: `{"topic":"go"}`},
		{name: "fenced", payload: "```json\n{\"topic\":\"go\"}\n```"},
		{name: "fenced no language", payload: "```\n{\"topic\":\"go\"}\n```"},
		{name: "leading prose", payload: "Here is the JSON you asked for: {\"topic\":\"go\"}"},
		{name: "empty", payload: "   ", wantErr: true},
		{name: "not json", payload: "no structured data here", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out struct {
				Topic string `json:"topic"`
			}
			err := llm.DecodeJSON(tc.payload, &out)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected decode error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			if out.Topic != "go" {
				t.Fatalf("unexpected topic: %q", out.Topic)
			}
		})
	}
}

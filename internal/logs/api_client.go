package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"showrunner/internal/api"
)

// ErrAPIUnavailable indicates the daemon HTTP API is not reachable; callers
// fall back to the IPC log tail.
var ErrAPIUnavailable = errors.New("log API unavailable")

// StreamClient fetches structured log events from the daemon's /api/logs
// endpoint.
type StreamClient struct {
	base *url.URL
	http *http.Client
}

// StreamQuery selects which log events to fetch.
type StreamQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	Component string
	SessionID string
	Level     string
}

// NewStreamClient builds a client for the given API bind address. An empty
// bind returns (nil, nil): the HTTP API is not configured.
func NewStreamClient(bind string) (*StreamClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &StreamClient{
		base: base,
		// No timeout: follow mode blocks waiting for events until the caller
		// cancels the context.
		http: &http.Client{},
	}, nil
}

// Fetch executes one log query against the daemon.
func (c *StreamClient) Fetch(ctx context.Context, q StreamQuery) (api.LogStreamResponse, error) {
	if c == nil {
		return api.LogStreamResponse{}, ErrAPIUnavailable
	}

	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if strings.TrimSpace(q.Component) != "" {
		values.Set("component", q.Component)
	}
	if strings.TrimSpace(q.SessionID) != "" {
		values.Set("session", q.SessionID)
	}
	if strings.TrimSpace(q.Level) != "" {
		values.Set("level", q.Level)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/logs", RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return api.LogStreamResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return api.LogStreamResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return api.LogStreamResponse{}, fmt.Errorf("api logs returned status %d", resp.StatusCode)
	}

	var payload api.LogStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return api.LogStreamResponse{}, err
	}
	return payload, nil
}

// IsAPIUnavailable reports whether the error means the HTTP API could not be
// reached at all, as opposed to an API-level failure.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

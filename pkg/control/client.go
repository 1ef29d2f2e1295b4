package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Veraticus/quiesce/pkg/activity"
)

// ErrNotRunning means nothing is listening on the control socket.
var ErrNotRunning = errors.New("quiesce is not running")

// Client talks to a running watcher over its Unix socket.
type Client struct {
	sockPath   string
	httpClient *http.Client
}

// NewClient creates a client for the server listening on sockPath.
func NewClient(sockPath string) *Client {
	return &Client{
		sockPath: sockPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", sockPath)
				},
			},
		},
	}
}

// Health returns the server's health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, http.StatusOK, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// State returns the current monitor state.
func (c *Client) State(ctx context.Context) (*StateResponse, error) {
	var st StateResponse
	if err := c.do(ctx, http.MethodGet, "/v1/state", nil, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// NotifyActivity sends one activity pulse.
func (c *Client) NotifyActivity(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/activity", nil, http.StatusNoContent, nil)
}

// Wait blocks until the monitor is idle, timeout elapses, or ctx ends.
func (c *Client) Wait(ctx context.Context, timeout time.Duration) (activity.Outcome, error) {
	var resp WaitResponse
	err := c.do(ctx, http.MethodPost, "/v1/wait", WaitRequest{TimeoutMs: timeout.Milliseconds()}, http.StatusOK, &resp)
	if err != nil {
		if ctx.Err() != nil {
			return activity.OutcomeCancelled, nil
		}
		return 0, err
	}
	return resp.Outcome, nil
}

// SetInactivityTimeout changes the debounce window of the running monitor.
func (c *Client) SetInactivityTimeout(ctx context.Context, timeout time.Duration) error {
	return c.do(ctx, http.MethodPut, "/v1/inactivity-timeout", TimeoutRequest{TimeoutMs: timeout.Milliseconds()}, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://quiesce"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w (socket %s)", ErrNotRunning, c.sockPath)
		}
		return fmt.Errorf("connecting to quiesce: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		var e ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("quiesce returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("quiesce returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

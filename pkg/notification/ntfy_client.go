package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultNtfyTimeout bounds a single publish request.
const DefaultNtfyTimeout = 10 * time.Second

// NtfyClient publishes notifications to an ntfy server.
type NtfyClient struct {
	server     string
	topic      string
	httpClient *http.Client
}

// NewNtfyClient creates a client publishing to topic on server.
func NewNtfyClient(server, topic string) *NtfyClient {
	return &NtfyClient{
		server:     strings.TrimRight(server, "/"),
		topic:      topic,
		httpClient: &http.Client{Timeout: DefaultNtfyTimeout},
	}
}

// ntfyMessage is ntfy's JSON publish body.
type ntfyMessage struct {
	Topic   string   `json:"topic"`
	Title   string   `json:"title,omitempty"`
	Message string   `json:"message"`
	Tags    []string `json:"tags,omitempty"`
}

// Send implements the Notifier interface
func (c *NtfyClient) Send(n Notification) error {
	body, err := json.Marshal(ntfyMessage{
		Topic:   c.topic,
		Title:   n.Title,
		Message: n.Message,
		Tags:    n.Tags,
	})
	if err != nil {
		return fmt.Errorf("encode ntfy message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.server+"/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish to ntfy: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

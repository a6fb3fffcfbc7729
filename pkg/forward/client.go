package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/billable/jobqueue/pkg/security"
)

// Client sends commands to the primary's write endpoint.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client for the primary at baseURL, authenticating with token.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + Path,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exec POSTs cmd to the primary and returns the raw JSON result.
func (c *Client) Exec(ctx context.Context, cmd Command) (json.RawMessage, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("forward: encode %s: %w", cmd, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Command: cmd.String(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Command: cmd.String(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, security.MaxWriteBodySize))
	if err != nil {
		return nil, &Error{Command: cmd.String(), StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("forwarded write rejected",
			"command", cmd.String(), "status", resp.StatusCode, "duration", time.Since(start))
		return nil, &Error{
			Command:    cmd.String(),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(payload),
		}
	}

	c.logger.Debug("forwarded write completed",
		"command", cmd.String(), "status", resp.StatusCode, "duration", time.Since(start))
	return json.RawMessage(payload), nil
}

func errorMessage(payload []byte) string {
	var body errorBody
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(payload))
}

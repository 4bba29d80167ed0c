// Package transport posts chat requests to the relay endpoint and hands back
// the streaming response body.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New returns a client for the relay at endpoint. The default HTTP client has
// no timeout; streams are bounded by the caller's context.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Stream sends req and returns the response body for incremental reading.
// The caller must close it.
func (c *Client) Stream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	c.logger.Debug("posting chat request",
		zap.String("endpoint", c.endpoint),
		zap.Int("messages", len(req.Messages)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach relay: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, raw),
		}
	}

	return resp.Body, nil
}

// errorMessage pulls a human readable message out of an error body.
func errorMessage(status int, raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error", "error.message", "message"} {
			if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !gjson.ValidBytes(raw) {
		return text
	}
	return http.StatusText(status)
}

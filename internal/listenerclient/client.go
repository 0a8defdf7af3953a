// Package listenerclient talks to a running import listener over HTTP.
package listenerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/server"
)

const (
	DefaultTimeout = 5 * time.Second
	// ImportTimeout bounds a remote download and import.
	ImportTimeout = 5 * time.Minute
)

// Client provides a shared HTTP client for listener endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithBaseURL points the client at an explicit address.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// New creates a Client for the listener described by cfg.
func New(cfg config.ServerConfig, opts ...Option) *Client {
	client := &Client{
		baseURL: ResolveBaseURL(cfg),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ResolveBaseURL builds the listener base URL from config.
func ResolveBaseURL(cfg config.ServerConfig) string {
	return "http://" + net.JoinHostPort(NormalizeBind(cfg.ImportListenBind), strconv.Itoa(cfg.ImportListenPort))
}

// NormalizeBind maps wildcard binds to loopback for local clients.
func NormalizeBind(bind string) string {
	bind = strings.Trim(bind, "[]")
	if bind == "" || bind == "0.0.0.0" || bind == "::" {
		return "127.0.0.1"
	}
	return bind
}

// BaseURL returns the address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ready fetches /readyz health status.
func (c *Client) Ready(ctx context.Context) (*server.HealthStatus, error) {
	var status server.HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/readyz", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Import asks the listener to download and import a snapshot.
func (c *Client) Import(ctx context.Context, req server.ImportRequest) (*server.ImportResponse, error) {
	var result server.ImportResponse
	if err := c.doJSON(ctx, http.MethodPost, "/import", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Imports fetches the most recent import records.
func (c *Client) Imports(ctx context.Context, limit int) ([]server.ImportRecord, error) {
	path := "/imports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var result []server.ImportRecord
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("failed to encode request; %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request; %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to listener; %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return fmt.Errorf("listener request failed; %s", errResp.Error)
		}
		return fmt.Errorf("listener request failed; status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response; %w", err)
	}

	return nil
}

// Package syncclient talks to the remote asset catalog server: settings and
// filter caches, content existence checks, archive upload, project
// resolution, progress notifications and snapshot download.
//
// Every request runs under an explicit timeout. When a wait times out the
// request context is cancelled and the request is marked abandoned, so a
// late completion cannot leak into state the caller has already moved past.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

const (
	DefaultTimeout  = 5 * time.Second
	UploadTimeout   = 10 * time.Second
	DownloadTimeout = 60 * time.Second

	// SettingsTTL is how long a settings fetch, successful or not, is reused.
	SettingsTTL = 10 * time.Second

	// FiltersTTL is how long parsed export filters are reused.
	FiltersTTL = 5 * time.Second

	// DefaultNotifyRate bounds progress notifications per second.
	DefaultNotifyRate = 20
)

var (
	// ErrTimeout is returned when a request does not complete within its timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrUnavailable is returned when no base URL is configured or the server
	// answered with an unusable response.
	ErrUnavailable = errors.New("catalog server unavailable")
)

// StatusError reports a non-200 response.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed; status %d", e.Op, e.Status)
}

// Timeouts bounds each class of request.
type Timeouts struct {
	Default  time.Duration
	Upload   time.Duration
	Download time.Duration
}

// Client is a catalog server client. Methods take the base URL explicitly so
// a single client can serve reconfigured endpoints; caches are keyed by it.
type Client struct {
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
	timeouts   Timeouts
	notify     *rate.Limiter
	userAgent  string

	settingsMu sync.Mutex
	settings   map[string]settingsEntry

	filtersMu sync.Mutex
	filters   map[string]*filtersEntry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock sets the clock used for cache expiry and request timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeouts overrides the request timeouts. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		if t.Default > 0 {
			c.timeouts.Default = t.Default
		}
		if t.Upload > 0 {
			c.timeouts.Upload = t.Upload
		}
		if t.Download > 0 {
			c.timeouts.Download = t.Download
		}
	}
}

// WithNotifyRate limits progress notifications to perSecond events. Zero or
// negative disables the limit.
func WithNotifyRate(perSecond int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.notify = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.notify = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		clock:      clock.New(),
		logger:     slog.Default(),
		timeouts: Timeouts{
			Default:  DefaultTimeout,
			Upload:   UploadTimeout,
			Download: DownloadTimeout,
		},
		notify:   rate.NewLimiter(rate.Limit(DefaultNotifyRate), DefaultNotifyRate),
		settings: make(map[string]settingsEntry),
		filters:  make(map[string]*filtersEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// NormalizeBaseURL trims whitespace, defaults the scheme to http and strips
// trailing slashes. An empty input stays empty.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/")
}

// joinPath appends a path template to a normalized base URL.
func joinPath(base, path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return NormalizeBaseURL(base) + path
}

type result[T any] struct {
	val T
	err error
}

// do runs fn on its own goroutine and waits for it, the timeout or the
// caller's context. A timed-out call cancels fn's context and drops its
// late result.
func do[T any](ctx context.Context, c *Client, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := c.clock.Now()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var abandoned atomic.Bool
	done := make(chan result[T], 1)

	go func() {
		val, err := fn(reqCtx)
		if abandoned.Load() {
			return
		}
		done <- result[T]{val: val, err: err}
	}()

	timer := c.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		outcome := "success"
		if r.err != nil {
			outcome = "error"
		}
		metrics.RecordSyncRequest(op, outcome, c.clock.Since(start))
		return r.val, r.err
	case <-timer.C:
		abandoned.Store(true)
		cancel()
		metrics.RecordSyncRequest(op, "timeout", c.clock.Since(start))
		c.logger.Warn("catalog request timed out", "operation", op, "timeout", timeout)
		return zero, fmt.Errorf("%s; %w", op, ErrTimeout)
	case <-ctx.Done():
		abandoned.Store(true)
		metrics.RecordSyncRequest(op, "canceled", c.clock.Since(start))
		return zero, ctx.Err()
	}
}

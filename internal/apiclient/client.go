// Package apiclient is the JSON-over-HTTP client the console uses to talk to
// the remote REST API. It attaches the process-wide bearer token, decodes the
// {data, meta, links, errors, message} envelope and normalizes failures into
// *domain.AppError values.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// ErrResponseTooLarge is wrapped by the transport error returned when a
// response body exceeds maxBodyBytes.
var ErrResponseTooLarge = errors.New("response too large")

// UnauthorizedFunc is invoked whenever the API answers 401.
type UnauthorizedFunc func(ctx context.Context, err error)

// Client issues requests against a base URL. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
	metrics *Metrics

	token atomic.Pointer[string]

	mu             sync.RWMutex
	onUnauthorized UnauthorizedFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the transport-level timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for baseURL. Relative request paths are resolved
// against it, so it should end with a slash.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the bearer token attached to every request. An empty token
// removes the Authorization header.
func (c *Client) SetToken(token string) {
	if token == "" {
		c.token.Store(nil)
		return
	}
	c.token.Store(&token)
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	if p := c.token.Load(); p != nil {
		return *p
	}
	return ""
}

// OnUnauthorized installs the global 401 handler.
func (c *Client) OnUnauthorized(fn UnauthorizedFunc) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.Send(ctx, http.MethodGet, path, query, nil)
}

// Send issues a request with an optional JSON body.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewAppError(domain.CodeInternal, "failed to encode request", err)
		}
		reader = bytes.NewReader(buf)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, reader, contentType)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*Envelope, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.metrics.observe(method, path, "error", latency)
		c.logger.WarnContext(ctx, "api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	c.metrics.observe(method, path, statusClass(resp.StatusCode), latency)
	c.logger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", latency),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if len(raw) > maxBodyBytes {
		c.logger.WarnContext(ctx, "api response exceeds the body limit",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("limit", maxBodyBytes),
		)
		return nil, transportError(ctx, ErrResponseTooLarge)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := statusError(resp.StatusCode, raw)
		if appErr.Code == domain.CodeUnauthorized {
			c.unauthorized(ctx, appErr)
		}
		return nil, appErr
	}

	return decodeEnvelope(raw)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "invalid request path", err)
	}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := pkg.RequestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return req, nil
}

func (c *Client) unauthorized(ctx context.Context, err error) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx, err)
	}
}

// transportError folds network failures into a CodeTransport error carrying
// the best available human-readable text.
func transportError(ctx context.Context, err error) *domain.AppError {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg = "request timed out"
	case errors.Is(err, context.Canceled):
		msg = "request canceled"
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			msg = urlErr.Err.Error()
		}
	}
	return domain.NewAppError(domain.CodeTransport, msg, err)
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

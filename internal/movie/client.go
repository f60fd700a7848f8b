package movie

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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storyreel/internal/config"
	"storyreel/internal/logging"
)

const (
	userAgent      = "storyreel/0.1.0"
	maxErrorBody   = 8 << 10
	defaultTimeout = 30 * time.Second
	tracerName     = "storyreel/internal/movie"
)

// Client talks to the backend REST API.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "backend")
	}
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient builds a client rooted at baseURL (for example
// http://127.0.0.1:8000/api/v1).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	client := &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewClientFromConfig builds a client from the [backend] config section.
func NewClientFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClient(
		cfg.Backend.BaseURL,
		WithToken(cfg.Backend.APIToken),
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithLogger(logger),
	)
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// do executes one request. A nil out discards the body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	ctx, span := c.tracer.Start(ctx, "backend "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return transportError(method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	c.logger.Debug("backend request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newAPIError(method, path, resp.StatusCode, payload)
		span.SetStatus(codes.Error, apiErr.Message)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil)
}

// submit posts a submission and decodes the task handle. Responses without a
// task_id (the mutated resource itself) produce an empty handle.
func (c *Client) submit(ctx context.Context, path string, payload any) (TaskHandle, error) {
	var raw json.RawMessage
	if err := c.sendJSON(ctx, http.MethodPost, path, payload, &raw); err != nil {
		return TaskHandle{}, err
	}
	return decodeHandle(raw), nil
}

func decodeHandle(raw json.RawMessage) TaskHandle {
	var handle TaskHandle
	if len(raw) == 0 {
		return handle
	}
	if err := json.Unmarshal(raw, &handle); err != nil {
		return TaskHandle{}
	}
	handle.TaskID = strings.TrimSpace(handle.TaskID)
	return handle
}

func segment(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}

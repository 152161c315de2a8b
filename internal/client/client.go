// Package client talks to the CleanPlate lookup service.
//
// Every call validates user-controlled fields once, then runs one or more HTTP
// attempts. Idempotent reads retry transient failures (network, certificate
// trust, 5xx) with exponential backoff; everything else fails fast. Failures
// are normalized into *Error so callers can branch on Kind and render
// UserMessage without seeing transport details.
package client

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
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cleanplate/internal/platform/metrics"
	"cleanplate/pkg/platform/circuit"
	"cleanplate/pkg/requestcontext"
)

const (
	// DefaultBaseURL is the production lookup service.
	DefaultBaseURL = "https://cleanplate-production.up.railway.app"

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 20 * time.Second

	// DefaultPageSize is the number of search results per page.
	DefaultPageSize = 25

	defaultUserAgent = "cleanplate-go/1.0"
	maxErrorBody     = 4 << 10
)

// TokenSource supplies the bearer token. It is consulted on every attempt so
// a retry picks up a token that changed meanwhile.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token or ErrUnauthenticated when it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrUnauthenticated
	}
	return string(t), nil
}

// Config holds the connection settings for Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Retry     RetryPolicy
	TLS       TLSConfig
	UserAgent string
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	retry      RetryPolicy
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	breaker    *circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithTransport replaces the transport built from Config.TLS.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Transport: rt}
	}
}

// WithBreaker tracks transient failures so Degraded can report an unhealthy
// service.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New builds a Client. A malformed base URL or retry policy is a
// KindInvalidRequest error.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err == nil && (base.Scheme == "" || base.Host == "") {
		err = fmt.Errorf("base URL %q is not absolute", cfg.BaseURL)
	}
	if err != nil {
		return nil, newError(KindInvalidRequest, "client.new", "invalid base URL", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, newError(KindInvalidRequest, "client.new", "invalid retry policy", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Transport: NewTransport(cfg.TLS)},
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		userAgent:  cfg.UserAgent,
		logger:     slog.Default(),
		tracer:     otel.Tracer("cleanplate/internal/client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Degraded reports whether recent attempts failed often enough to open the
// circuit breaker. Always false without WithBreaker.
func (c *Client) Degraded() bool {
	return c.breaker != nil && c.breaker.IsOpen()
}

// call describes one logical request.
type call struct {
	op     string
	method string
	path   []string
	query  url.Values
	body   any
	auth   TokenSource
	retry  bool
}

// do runs c with retries when allowed and decodes a 2xx body into out.
// A nil out means the call expects no content and decoding is skipped.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	start := time.Now()
	defer c.metrics.ObserveCall(cl.op, start)

	ctx, span := c.tracer.Start(ctx, "cleanplate."+cl.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", cl.method),
			attribute.Bool("cleanplate.retryable_op", cl.retry),
		))
	defer span.End()

	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return newError(KindInvalidRequest, cl.op, "encode request body", err)
		}
	}

	requestID := requestcontext.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	attempts := 1
	if cl.retry {
		attempts += c.retry.MaxRetries
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.retry.Backoff(attempt - 1)
			c.metrics.IncrementRetry(cl.op)
			c.logger.WarnContext(ctx, "retrying lookup service call",
				"op", cl.op,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err,
			)
			if werr := sleep(ctx, backoff); werr != nil {
				err = cancelled(cl.op, werr)
				break
			}
		}
		if cerr := ctx.Err(); cerr != nil {
			err = cancelled(cl.op, cerr)
			break
		}

		err = c.attempt(ctx, cl, payload, requestID, attempt+1, out)
		c.metrics.IncrementAttempt(cl.op, outcome(err))
		c.recordBreaker(ctx, err)
		if err == nil || !IsRetryable(err) {
			break
		}
	}

	span.SetAttributes(attribute.String("cleanplate.request_id", requestID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		c.logFailure(ctx, cl.op, requestID, err)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, cl call, payload []byte, requestID string, n int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, cl, payload, requestID)
	if err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "calling lookup service",
		"op", cl.op,
		"method", cl.method,
		"path", req.URL.Path,
		"attempt", n,
		"request_id", requestID,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(cl.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return serverError(cl.op, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classifyTransport(cl.op, err)
		}
		return newError(KindDecoding, cl.op, "decode response", err)
	}
	return nil
}

// newRequest builds a fresh request for every attempt, including the token.
func (c *Client) newRequest(ctx context.Context, cl call, payload []byte, requestID string) (*http.Request, error) {
	u := c.baseURL.JoinPath(cl.path...)
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, newError(KindInvalidRequest, cl.op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if cl.auth != nil {
		token, err := cl.auth.Token(ctx)
		if err == nil && token == "" {
			err = ErrUnauthenticated
		}
		if err != nil {
			return nil, newError(KindInvalidRequest, cl.op, "missing credentials", err).notRetryable()
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) recordBreaker(ctx context.Context, err error) {
	if c.breaker == nil || errors.Is(err, context.Canceled) {
		return
	}
	if err != nil && IsRetryable(err) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.metrics.SetDegraded(true)
			c.logger.WarnContext(ctx, "lookup service degraded", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetDegraded(false)
		c.logger.InfoContext(ctx, "lookup service recovered", "breaker", c.breaker.Name())
	}
}

func (c *Client) logFailure(ctx context.Context, op, requestID string, err error) {
	attrs := []any{"op", op, "kind", KindOf(err), "request_id", requestID, "error", err}
	switch KindOf(err) {
	case KindSSLPinning:
		c.logger.ErrorContext(ctx, "certificate trust failure", attrs...)
	case KindValidation:
		c.logger.DebugContext(ctx, "request rejected by validation", attrs...)
	default:
		if errors.Is(err, context.Canceled) {
			c.logger.DebugContext(ctx, "lookup service call cancelled", attrs...)
			return
		}
		c.logger.WarnContext(ctx, "lookup service call failed", attrs...)
	}
}

func (e *Error) notRetryable() *Error {
	e.Retryable = false
	return e
}

func cancelled(op string, err error) *Error {
	return newError(KindNetwork, op, "call cancelled", err).notRetryable()
}

// ValidationError wraps a rejected input as a KindValidation error for op.
func ValidationError(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: err.Error(), Err: err}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}

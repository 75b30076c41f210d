// Package httpclient is the shared HTTP transport for the speech and
// language providers: connection reuse, HTTP/2, retries with exponential
// backoff and mapping of status codes onto application errors.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/http2"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// Config holds client configuration
type Config struct {
	// Timeout bounds a single attempt
	Timeout time.Duration
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts uint
	// InitialInterval is the first retry delay
	InitialInterval time.Duration
	// MaxElapsed bounds the whole retry loop
	MaxElapsed time.Duration
	// EnableHTTP2 configures the transport for HTTP/2
	EnableHTTP2 bool
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         90 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxElapsed:      3 * time.Minute,
		EnableHTTP2:     true,
	}
}

// Client performs provider requests
type Client struct {
	http   *http.Client
	config Config
}

// New creates a client with a pooled transport
func New(config Config) *Client {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 1
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 500 * time.Millisecond
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if config.EnableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}

	return &Client{
		http: &http.Client{
			Transport: tr,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// NewWithHTTPClient wraps an existing http.Client (used by tests)
func NewWithHTTPClient(hc *http.Client, config Config) *Client {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 1
	}
	return &Client{http: hc, config: config}
}

// Request describes one provider call
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Service names the provider in errors ("azure", "openrouter")
	Service string
	// ErrorKind is the kind used for provider failures
	ErrorKind apperr.Kind
}

// Response is a completed provider response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Do sends the request, retrying transport failures, 429 and 5xx responses.
// Errors are always *apperr.Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	kind := req.ErrorKind
	if kind == "" {
		kind = apperr.KindInternal
	}

	op := func() (*Response, error) {
		resp, err := c.once(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(apperr.Wrap(kind, "request cancelled", ctx.Err()).
					WithDetail("service", req.Service))
			}
			return nil, apperr.Wrap(kind, fmt.Sprintf("%s request failed", req.Service), err).
				WithDetail("service", req.Service)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		appErr := apperr.FromStatus(resp.StatusCode, kind, req.Service)
		if !appErr.Retryable {
			return nil, backoff.Permanent(appErr)
		}
		if secs := retryAfter(resp.Header); secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, appErr
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialInterval

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.config.MaxAttempts),
	}
	if c.config.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.config.MaxElapsed))
	}

	resp, err := backoff.Retry(ctx, op, opts...)
	if err != nil {
		return nil, normalize(err, kind, req.Service)
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// normalize turns whatever the retry loop returned into an application error
func normalize(err error, kind apperr.Kind, service string) error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}

	var retryAfterErr *backoff.RetryAfterError
	if errors.As(err, &retryAfterErr) {
		return apperr.New(apperr.KindRateLimited, "rate limited by "+service).
			WithDetail("service", service)
	}

	return apperr.Wrap(kind, fmt.Sprintf("%s request failed", service), err).
		WithDetail("service", service)
}

func retryAfter(h http.Header) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

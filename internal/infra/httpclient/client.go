// Package httpclient is the JSON transport shared by the outbound clients
// of the registry, scoring and messaging services.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUpstreamUnavailable wraps transport failures and non-2xx answers.
var ErrUpstreamUnavailable = errors.New("upstream service unavailable")

const maxResponseBytes = 4 << 20

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetries sets how many times a failed request is repeated.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithBackoff sets the first retry delay. Later delays double.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.logger = l }
}

// Client sends JSON requests to one upstream service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	retries int
	backoff time.Duration
	logger  *logrus.Entry
}

// Response is the raw answer of the final attempt.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func New(service, baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retries: 2,
		backoff: 500 * time.Millisecond,
		logger:  logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.WithField("service", service)
	return c
}

// Service returns the upstream name used in logs and errors.
func (c *Client) Service() string {
	return c.service
}

// Do sends one request, retrying transport errors and 5xx answers with
// exponential backoff. Any other status is returned to the caller as is;
// exhausted retries yield ErrUpstreamUnavailable.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := c.encode(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	delay := c.backoff
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.WithError(lastErr).WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt + 1,
			}).Warn("Retrying upstream request")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s %s: %w", ErrUpstreamUnavailable, c.service, path, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := c.once(ctx, method, path, payload)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Status >= 500 {
			lastErr = fmt.Errorf("status %d", resp.Status)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %s %s: %w", ErrUpstreamUnavailable, c.service, path, lastErr)
}

// DoOnce sends exactly one request whatever the retry policy. It is for
// calls that must not be repeated, such as message delivery. Transport
// errors and 5xx answers yield ErrUpstreamUnavailable.
func (c *Client) DoOnce(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := c.encode(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.once(ctx, method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUpstreamUnavailable, c.service, path, err)
	}
	if resp.Status >= 500 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUpstreamUnavailable, c.service, path, resp.Status)
	}
	return resp, nil
}

func (c *Client) encode(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", c.service, err)
	}
	return payload, nil
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// GetJSON decodes the 2xx answer of a GET into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends body and decodes the 2xx answer into out. A nil out
// discards the answer.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s %s returned status %d", ErrUpstreamUnavailable, c.service, path, resp.Status)
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", c.service, path, err)
	}
	return nil
}

// Package controlroll fetches the rotation report from the ControlRoll API.
package controlroll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rotationsync/internal/logging"
	"rotationsync/internal/syncerr"
)

// DefaultTimeout is generous because the upstream builds the report on demand.
const DefaultTimeout = time.Hour

const maxErrorBody = 512

// Client issues report requests against a single endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

// Response is the raw report as returned by the upstream.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        logging.For("controlroll"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch sends one GET with the report method and token headers and returns the
// body untouched. There is no retry: a failure aborts the sync.
func (c *Client) Fetch(ctx context.Context, token string) (*Response, error) {
	if c.endpoint == "" {
		return nil, syncerr.New(syncerr.ConfigurationError, "missing env API_LOCAL_URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.ConfigurationError, err, "build request for %s", c.endpoint)
	}
	req.Header.Set("method", "report")
	req.Header.Set("token", token)

	start := time.Now()
	c.log.Info("requesting report", "endpoint", c.endpoint)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.TransportFailure, err, "GET %s", c.endpoint)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &syncerr.Error{
			Kind:    syncerr.TransportFailure,
			Message: fmt.Sprintf("read body from %s", c.endpoint),
			Status:  res.StatusCode,
			Err:     err,
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyStr := string(body)
		if len(bodyStr) > maxErrorBody {
			bodyStr = bodyStr[:maxErrorBody]
		}
		return nil, &syncerr.Error{
			Kind:    syncerr.TransportFailure,
			Message: fmt.Sprintf("GET %s", c.endpoint),
			Status:  res.StatusCode,
			Err:     &APIError{StatusCode: res.StatusCode, Body: bodyStr},
		}
	}

	c.log.Info("report received",
		"status", res.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start).String(),
	)

	return &Response{
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

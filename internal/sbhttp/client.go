package sbhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Client is a wrapper around http.Client that retries transient failures a
// bounded number of times before giving up.  It is safe for concurrent use.
type Client struct {
	logger  *slog.Logger
	http    *http.Client
	backoff time.Duration
	retries int
}

// ClientConfig is the configuration structure for Client.
type ClientConfig struct {
	// Logger is used for logging retried requests.
	Logger *slog.Logger

	// Timeout is the timeout for a single request attempt.
	Timeout time.Duration

	// Backoff is the initial pause before the first retry.  It is doubled
	// before each subsequent retry.
	Backoff time.Duration

	// Retries is how many times a failed request is reissued before the last
	// error is returned.
	Retries int
}

// NewClient returns a new client.  c must not be nil.
func NewClient(c *ClientConfig) (cli *Client) {
	return &Client{
		logger: c.Logger,
		http: &http.Client{
			Timeout: c.Timeout,
		},
		backoff: c.Backoff,
		retries: c.Retries,
	}
}

// Get performs a GET request to u, retrying on transport errors and
// server-side (5xx) statuses.
//
// When err is nil, resp always contains a non-nil resp.Body.  Caller should
// close resp.Body when done reading from it.
func (c *Client) Get(ctx context.Context, u *url.URL) (resp *http.Response, err error) {
	return c.do(ctx, http.MethodGet, u, "", nil)
}

// Post performs a POST request to u with the given body, retrying on
// transport errors and server-side (5xx) statuses.
//
// When err is nil, resp always contains a non-nil resp.Body.  Caller should
// close resp.Body when done reading from it.
func (c *Client) Post(
	ctx context.Context,
	u *url.URL,
	contentType string,
	body []byte,
) (resp *http.Response, err error) {
	return c.do(ctx, http.MethodPost, u, contentType, body)
}

// do reissues the request up to c.retries additional times.  The body is kept
// as a byte slice so that every attempt sends the complete payload.
func (c *Client) do(
	ctx context.Context,
	method string,
	u *url.URL,
	contentType string,
	body []byte,
) (resp *http.Response, err error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		resp, err = c.doOnce(ctx, method, u, contentType, body)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}

		if resp != nil {
			err = &StatusError{Got: resp.StatusCode}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		if attempt >= c.retries {
			return nil, fmt.Errorf("%s %s: after %d attempts: %w", method, u.Path, attempt+1, err)
		}

		c.logger.DebugContext(
			ctx,
			"retrying request",
			"method", method,
			"path", u.Path,
			"attempt", attempt,
			slogutil.KeyError, err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// doOnce performs a single request attempt.
func (c *Client) doOnce(
	ctx context.Context,
	method string,
	u *url.URL,
	contentType string,
	body []byte,
) (resp *http.Response, err error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}

	if contentType != "" {
		req.Header.Set(httphdr.ContentType, contentType)
	}

	req.Header.Set(httphdr.UserAgent, UserAgent())

	return c.http.Do(req)
}

// Package fetcher performs polite, identity-randomized HTTP GETs.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pevans/linkfeed/failure"
	"github.com/pevans/linkfeed/logger"
)

// DefaultTimeout bounds a single request when the caller passes zero.
const DefaultTimeout = 10 * time.Second

// Options configures a Fetcher.
type Options struct {
	// Policy supplies the delay and identity headers. Defaults to a
	// RandomPolicy with a 50ms ceiling.
	Policy Politeness
	// RequestsPerSecond caps the request rate; zero means unlimited.
	RequestsPerSecond float64
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
	Logger logger.Logger
}

// Fetcher issues GET requests. It is safe for concurrent use but the
// pipeline drives it sequentially.
type Fetcher struct {
	client  *http.Client
	policy  Politeness
	limiter *rate.Limiter
	log     logger.Logger
}

// Response is a successful (2xx) response whose body has not been read.
// Callers must Close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// ContentType returns the Content-Type header value.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Close releases the body and the per-request timeout.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// StatusCodeOf extracts the HTTP status from a fetch error, or 0.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// New creates a Fetcher from opts.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		client: opts.Client,
		policy: opts.Policy,
		log:    opts.Logger,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.policy == nil {
		f.policy = NewRandomPolicy(50*time.Millisecond, nil)
	}
	if f.log == nil {
		f.log = logger.NewNop()
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// Fetch performs a GET on url. Every failure, including non-2xx statuses, is
// returned as a failure.Network error; the body of a successful response is
// left unread. The timeout covers the whole exchange including reading the
// body, and is released by Response.Close.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := f.wait(ctx); err != nil {
		return nil, failure.New(failure.Network, "fetch", url, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)

	// Create request
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, failure.New(failure.Network, "fetch", url, fmt.Errorf("failed to create request: %w", err))
	}
	for key, values := range f.policy.Headers() {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	// Perform the request
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		f.log.Error("Request failed", logger.String("url", url), logger.Err(err))
		return nil, failure.New(failure.Network, "fetch", url, fmt.Errorf("failed to fetch URL: %w", err))
	}

	// Check for HTTP errors
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		f.log.Error("Request failed", logger.String("url", url), logger.Int("status", resp.StatusCode))
		return nil, failure.New(failure.Network, "fetch", url, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		})
	}

	f.log.Debug("Received response", logger.String("url", url), logger.Int("status", resp.StatusCode))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// wait applies the rate limit and then the politeness delay.
func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	delay := f.policy.Delay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

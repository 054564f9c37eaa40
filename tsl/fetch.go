package tsl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/resty.v1"
)

// HTTPError is a non-200 answer from a trusted list location.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d fetching %s", e.StatusCode, e.URL)
}

// Fetcher downloads trusted lists. Locations without an http or https
// scheme are read from the local file system.
type Fetcher struct {
	client     *resty.Client
	cache      Cache
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache sets the cache consulted before each download.
func WithCache(cache Cache) FetcherOption {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// WithMaxRetries sets the number of attempts per download.
func WithMaxRetries(retries int) FetcherOption {
	return func(f *Fetcher) {
		f.maxRetries = retries
	}
}

// WithRetryDelay sets the delay before the first retry. It doubles on each
// further attempt.
func WithRetryDelay(delay time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.baseDelay = delay
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// NewFetcher creates a fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		maxRetries: 3,
		baseDelay:  2 * time.Second,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxRetries < 1 {
		f.maxRetries = 1
	}
	f.client = resty.NewWithClient(&http.Client{Timeout: f.timeout})
	return f
}

// Fetch returns the content at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !isRemote(location) {
		return os.ReadFile(strings.TrimPrefix(location, "file://"))
	}

	if f.cache != nil {
		if content, ok := f.cache.Get(location); ok {
			log.Debugf("Trusted list %s served from cache", location)
			return content, nil
		}
	}

	var lastErr error
	delay := f.baseDelay
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		content, err := f.doFetch(ctx, location)
		if err == nil {
			if f.cache != nil {
				f.cache.Set(location, content)
			}
			return content, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			return nil, err
		}
		if attempt < f.maxRetries-1 {
			log.Warnf("Fetching trusted list %s failed, retrying in %s: %v", location, delay, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) doFetch(ctx context.Context, location string) ([]byte, error) {
	req := f.client.R()
	req.SetContext(ctx)
	req.SetHeader("Accept", MimeType+", text/xml, application/xml")

	resp, err := req.Get(location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &HTTPError{URL: location, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}

func isRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

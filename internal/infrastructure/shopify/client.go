package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/feedsync/backend/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultAPIVersion  = "2024-07"
	defaultMaxAttempts = 5
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 8 * time.Second
	maxRetryAfter      = 60 * time.Second
	maxErrorBody       = 300
)

// Options configures a catalog client
type Options struct {
	BaseURL           string // e.g. https://shop.myshopify.com
	APIVersion        string
	AccessToken       string
	RequestsPerSecond float64
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	HTTPClient        *http.Client
}

// Client handles communication with the Shopify Admin API.
// Every request of every caller passes through one shared rate limiter.
type Client struct {
	httpClient  *http.Client
	apiBase     string
	accessToken string
	rateLimiter *rate.Limiter
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	debug       bool
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Shopify Admin API client
func NewClient(opts Options) *Client {
	if opts.APIVersion == "" {
		opts.APIVersion = defaultAPIVersion
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		httpClient:  opts.HTTPClient,
		apiBase:     fmt.Sprintf("%s/admin/api/%s", strings.TrimSuffix(opts.BaseURL, "/"), opts.APIVersion),
		accessToken: opts.AccessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		sleep:       sleepContext,
	}
}

// SetDebug enables or disables request/response logging
func (c *Client) SetDebug(enabled bool) {
	c.debug = enabled
}

// APIError is a non-2xx response of the Admin API
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify %s %s -> %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is maps response statuses onto the domain error sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrCatalogAPI:
		return true
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case domain.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case domain.ErrDuplicate:
		return e.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(e.Body), "already exists")
	}
	return false
}

// do executes one API call with rate limiting and retries on 429/5xx.
// path is relative to the versioned API base unless it is an absolute URL.
// The response headers are returned so callers can follow pagination links.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) (http.Header, error) {
	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = c.apiBase + path
	}
	if len(query) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[SHOPIFY] Request error %s %s (attempt %d/%d): %v", method, path, attempt, c.maxAttempts, err)
			lastErr = fmt.Errorf("%w: %v", domain.ErrCatalogAPI, err)
			if attempt < c.maxAttempts {
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if c.debug {
			log.Printf("[SHOPIFY] %s %s -> %d (attempt %d)", method, path, resp.StatusCode, attempt)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = newAPIError(resp.StatusCode, method, path, respBody)
			if attempt == c.maxAttempts {
				break
			}
			wait := c.backoff(attempt)
			if ra := retryAfter(resp.Header); ra > 0 {
				wait = ra
			}
			log.Printf("[SHOPIFY] %s %s returned %d, retrying in %v (attempt %d/%d)", method, path, resp.StatusCode, wait, attempt, c.maxAttempts)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(resp.StatusCode, method, path, respBody)
		}

		if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return nil, fmt.Errorf("%w: failed to decode %s %s response: %v", domain.ErrCatalogAPI, method, path, err)
			}
		}
		return resp.Header, nil
	}

	log.Printf("[SHOPIFY] All %d attempts failed for %s %s", c.maxAttempts, method, path)
	return nil, fmt.Errorf("%w: %s %s after %d attempts: %v", domain.ErrRetriesExhausted, method, path, c.maxAttempts, lastErr)
}

func newAPIError(status int, method, path string, body []byte) *APIError {
	text := strings.TrimSpace(string(body))
	if r := []rune(text); len(r) > maxErrorBody {
		text = string(r[:maxErrorBody]) + "…"
	}
	return &APIError{StatusCode: status, Method: method, Path: path, Body: text}
}

// backoff returns the exponential delay for attempt plus up to 25% jitter
func (c *Client) backoff(attempt int) time.Duration {
	d := exponentialBackoff(c.backoffBase, c.backoffMax, attempt)
	return d + rand.N(d/4+1)
}

// exponentialBackoff returns base * 2^(attempt-1), capped at max
func exponentialBackoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// retryAfter parses a Retry-After header given in (possibly fractional) seconds or as an HTTP date
func retryAfter(h http.Header) time.Duration {
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if at, err := http.ParseTime(value); err == nil {
		d = time.Until(at)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package vtutil looks up partition payload hashes on VirusTotal.
package vtutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	vt "github.com/VirusTotal/vt-go"

	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

// Default settings
const (
	DefaultRateLimitPerMinute = 4 // free tier
	DefaultRetryCount         = 3
	DefaultRetryDelay         = 5 * time.Second
	DefaultCacheSize          = 256
	DefaultCacheTTL           = time.Hour
)

// ErrNotFound is returned when VirusTotal has no record of a hash.
var ErrNotFound = stderrors.New("hash not found in VirusTotal database")

// ClientConfig holds configuration for the VirusTotal client
type ClientConfig struct {
	APIKey           string
	RateLimitPerMin  int
	RetryCount       int
	RetryDelay       time.Duration
	CacheSize        int // zero disables the result cache
	CacheTTL         time.Duration
	CustomHost       string
	DisableRateLimit bool
}

// DefaultClientConfig returns a default configuration for the client
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RateLimitPerMin: DefaultRateLimitPerMinute,
		RetryCount:      DefaultRetryCount,
		RetryDelay:      DefaultRetryDelay,
		CacheSize:       DefaultCacheSize,
		CacheTTL:        DefaultCacheTTL,
	}
}

// lookupFunc fetches the report for one hash.
type lookupFunc func(ctx context.Context, hash string) (*FileReport, error)

// Client is a rate-limited, caching VirusTotal file lookup client. It is
// safe for concurrent use.
type Client struct {
	config ClientConfig
	lookup lookupFunc
	cache  *resultCache

	mutex        sync.Mutex
	windowStart  time.Time
	requestCount int
}

// NewClient creates a client backed by the VirusTotal v3 API.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: VirusTotal API key is required", errors.ErrAPIKeyMissing)
	}
	if config.CustomHost != "" {
		vt.SetHost(config.CustomHost)
	}

	vtClient := vt.NewClient(config.APIKey)
	c := newClient(config, func(ctx context.Context, hash string) (*FileReport, error) {
		obj, err := vtClient.GetObject(vt.URL("files/%s", hash))
		if err != nil {
			return nil, err
		}
		return parseFileObject(obj), nil
	})

	logger.LogDebug("VirusTotal client initialized", map[string]interface{}{
		"rate_limit": config.RateLimitPerMin,
		"retries":    config.RetryCount,
		"cache_size": config.CacheSize,
	})
	return c, nil
}

func newClient(config ClientConfig, lookup lookupFunc) *Client {
	if config.RateLimitPerMin <= 0 {
		config.DisableRateLimit = true
	}
	if config.RetryCount < 0 {
		config.RetryCount = 0
	}
	return &Client{
		config:      config,
		lookup:      lookup,
		cache:       newResultCache(config.CacheSize, config.CacheTTL),
		windowStart: time.Now().Add(-time.Minute),
	}
}

// CachedResults returns the number of lookups held in the cache.
func (c *Client) CachedResults() int {
	return c.cache.len()
}

// ClearCache drops every cached lookup.
func (c *Client) ClearCache() {
	c.cache.purge()
}

// checkRateLimit reserves a request slot and returns how long to wait before
// the request may be sent.
func (c *Client) checkRateLimit() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.config.DisableRateLimit {
		return 0
	}

	now := time.Now()
	elapsed := now.Sub(c.windowStart)
	if elapsed >= time.Minute {
		c.windowStart = now
		c.requestCount = 1
		return 0
	}

	if c.requestCount >= c.config.RateLimitPerMin {
		return time.Minute - elapsed
	}
	c.requestCount++
	return 0
}

// executeWithRetry runs fn until it succeeds, returns a permanent error, or
// the retry budget is spent.
func (c *Client) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		for {
			wait := c.checkRateLimit()
			if wait <= 0 {
				break
			}
			logger.LogInfo("Rate limit reached, throttling requests", map[string]interface{}{
				"wait": wait.String(),
			})
			if err := sleepContext(ctx, wait); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		lastErr = err
		logger.LogWarn(fmt.Sprintf("VirusTotal API request failed (attempt %d/%d): %s",
			attempt+1, c.config.RetryCount+1, operation), map[string]interface{}{
			"error": err.Error(),
		})

		if attempt < c.config.RetryCount {
			if err := sleepContext(ctx, c.config.RetryDelay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether an API error may succeed on a later attempt.
func retryable(err error) bool {
	if stderrors.Is(err, ErrNotFound) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var vtErr vt.Error
	if stderrors.As(err, &vtErr) {
		switch vtErr.Code {
		case "NotFoundError", "WrongCredentialsError", "AuthenticationRequiredError",
			"ForbiddenError", "InvalidArgumentError", "BadRequestError":
			return false
		}
	}
	return true
}

// classify maps VirusTotal API errors onto the package sentinels.
func classify(err error) error {
	var vtErr vt.Error
	if stderrors.As(err, &vtErr) {
		switch vtErr.Code {
		case "NotFoundError":
			return ErrNotFound
		case "QuotaExceededError", "TooManyRequestsError":
			return fmt.Errorf("%w: %s", errors.ErrAPIRateLimitExceeded, vtErr.Message)
		}
	}
	if stderrors.Is(err, ErrNotFound) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrAPICommunicationError, err)
}

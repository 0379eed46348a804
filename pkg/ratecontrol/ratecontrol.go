// Package ratecontrol paces probe traffic against a target API. A token
// bucket bounds steady-state throughput; an adaptive layer backs off
// exponentially while the target answers 429 and recovers as soon as it
// accepts requests again.
package ratecontrol

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/apiward/apiward/internal/config"
)

// Controller paces outgoing requests. Throttle state is shared by all
// workers probing the same target and guarded by its own mutex so workers
// never contend with result merging.
type Controller struct {
	limiter    *rate.Limiter
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int

	mu         sync.Mutex
	throttled  bool
	retryCount int
}

// Stats is a snapshot of the throttle state.
type Stats struct {
	Throttled  bool
	RetryCount int
}

// New builds a controller. Zero config fields fall back to the package
// defaults so a zero value config still paces safely.
func New(cfg config.RateLimitConfig) *Controller {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Controller{
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		maxRetries: cfg.MaxRetries,
	}
}

// Wait blocks until the token bucket admits a request, then sleeps the
// current adaptive delay. It returns early when ctx is cancelled.
func (c *Controller) Wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	delay := c.Delay()
	if delay <= 0 {
		return nil
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

// Delay returns the pause to apply before the next request: the base delay
// while the target is healthy, or capped exponential backoff while it is
// throttling. Jitter up to 10% spreads retries from concurrent workers.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.throttled {
		return c.baseDelay
	}

	backoff := c.baseDelay
	for i := 0; i < c.retryCount; i++ {
		backoff *= 2
		if backoff >= c.maxDelay {
			backoff = c.maxDelay
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(backoff)/10 + 1))
	return backoff + jitter
}

// Observe feeds a response status back into the throttle state. 429 marks
// the target as throttling and deepens the backoff up to the retry cap; any
// 2xx clears it entirely.
func (c *Controller) Observe(statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case statusCode == http.StatusTooManyRequests:
		c.throttled = true
		if c.retryCount < c.maxRetries {
			c.retryCount++
		}
	case statusCode >= 200 && statusCode < 300:
		c.throttled = false
		c.retryCount = 0
	}
}

// Throttled reports whether the last observed signal was a 429.
func (c *Controller) Throttled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttled
}

// Snapshot returns the current throttle state.
func (c *Controller) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Throttled: c.throttled, RetryCount: c.retryCount}
}

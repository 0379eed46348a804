package ratecontrol

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/apiward/apiward/internal/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New(config.RateLimitConfig{})

	if c.baseDelay != 100*time.Millisecond {
		t.Errorf("baseDelay = %v, want 100ms", c.baseDelay)
	}
	if c.maxDelay != 10*time.Second {
		t.Errorf("maxDelay = %v, want 10s", c.maxDelay)
	}
	if c.maxRetries != 5 {
		t.Errorf("maxRetries = %v, want 5", c.maxRetries)
	}
}

func TestDelayHealthy(t *testing.T) {
	c := New(config.RateLimitConfig{BaseDelay: 50 * time.Millisecond})

	if got := c.Delay(); got != 50*time.Millisecond {
		t.Errorf("Delay() = %v, want base delay while healthy", got)
	}
}

func TestObserveBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 10 * time.Second
	c := New(config.RateLimitConfig{
		BaseDelay:  base,
		MaxDelay:   max,
		MaxRetries: 5,
	})

	prevFloor := time.Duration(0)
	for i := 1; i <= 8; i++ {
		c.Observe(http.StatusTooManyRequests)

		retries := i
		if retries > 5 {
			retries = 5
		}
		floor := base
		for j := 0; j < retries; j++ {
			floor *= 2
			if floor >= max {
				floor = max
				break
			}
		}

		got := c.Delay()
		if got < floor {
			t.Errorf("after %d throttles: Delay() = %v, want >= %v", i, got, floor)
		}
		if ceil := floor + floor/10; got > ceil {
			t.Errorf("after %d throttles: Delay() = %v, want <= %v", i, got, ceil)
		}
		if floor < prevFloor {
			t.Errorf("backoff floor shrank: %v -> %v", prevFloor, floor)
		}
		prevFloor = floor
	}

	if s := c.Snapshot(); s.RetryCount != 5 {
		t.Errorf("RetryCount = %d, want capped at 5", s.RetryCount)
	}
}

func TestObserveSuccessResets(t *testing.T) {
	base := 100 * time.Millisecond
	c := New(config.RateLimitConfig{BaseDelay: base})

	c.Observe(http.StatusTooManyRequests)
	c.Observe(http.StatusTooManyRequests)
	if !c.Throttled() {
		t.Fatal("controller should be throttled after 429s")
	}

	c.Observe(http.StatusOK)

	if c.Throttled() {
		t.Error("2xx should clear the throttle flag")
	}
	if s := c.Snapshot(); s.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 after success", s.RetryCount)
	}
	if got := c.Delay(); got != base {
		t.Errorf("Delay() = %v, want base delay after reset", got)
	}
}

func TestObserveAcceptedStatusesReset(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted} {
		c := New(config.RateLimitConfig{})
		c.Observe(http.StatusTooManyRequests)
		c.Observe(status)
		if c.Throttled() {
			t.Errorf("status %d should clear the throttle flag", status)
		}
	}
}

func TestObserveIgnoresOtherStatuses(t *testing.T) {
	c := New(config.RateLimitConfig{})

	c.Observe(http.StatusTooManyRequests)
	// Errors neither deepen nor clear the backoff.
	c.Observe(http.StatusNotFound)
	c.Observe(http.StatusInternalServerError)

	if !c.Throttled() {
		t.Error("non-2xx, non-429 statuses should not clear the throttle flag")
	}
	if s := c.Snapshot(); s.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", s.RetryCount)
	}
}

func TestWaitContextCancellation(t *testing.T) {
	c := New(config.RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		BaseDelay:         time.Millisecond,
	})

	// Exhaust the burst token.
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Wait(ctx); err == nil {
		t.Error("Wait() with cancelled context should return an error")
	}
}

func TestWaitAppliesBackoff(t *testing.T) {
	c := New(config.RateLimitConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		BaseDelay:         time.Millisecond,
		MaxDelay:          time.Second,
	})

	c.Observe(http.StatusTooManyRequests)
	c.Observe(http.StatusTooManyRequests)
	c.Observe(http.StatusTooManyRequests)

	// Backoff floor is 8ms after three throttles.
	start := time.Now()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 8*time.Millisecond {
		t.Errorf("Wait() returned after %v, want at least the backoff floor", elapsed)
	}
}

func TestControllerConcurrentObserve(t *testing.T) {
	c := New(config.RateLimitConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if n%2 == 0 {
					c.Observe(http.StatusTooManyRequests)
				} else {
					c.Observe(http.StatusOK)
				}
				_ = c.Delay()
				_ = c.Throttled()
			}
		}(i)
	}
	wg.Wait()

	if s := c.Snapshot(); s.RetryCount > 5 {
		t.Errorf("RetryCount = %d, want <= 5 under concurrency", s.RetryCount)
	}
}

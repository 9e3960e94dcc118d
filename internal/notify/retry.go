package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// RetryConfig configures redelivery of failed notifications.
type RetryConfig struct {
	MaxRetries int           // Retry attempts after the first (default: 3)
	BaseDelay  time.Duration // Initial delay between retries (default: 200ms)
	MaxDelay   time.Duration // Maximum delay between retries (default: 5s)
	Multiplier float64       // Delay multiplier for exponential backoff (default: 2.0)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// HTTPError is a non-success response from an HTTP destination.
type HTTPError struct {
	Output     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.Output, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true for 5xx errors and 429 (rate limit)
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// withRetry calls send until it succeeds, fails permanently or the retry
// budget is spent.
func withRetry(ctx context.Context, name string, cfg RetryConfig, send func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := send(ctx)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Notify] %s: delivered on attempt %d", name, attempt+1)
			}
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt < cfg.MaxRetries {
			delay := retryDelay(attempt, cfg)
			log.Printf("[Notify] %s: attempt %d failed (%v), retrying in %v", name, attempt+1, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// isRetryable reports whether a delivery error is likely transient.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"temporary failure",
		"try again",
		"service unavailable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryDelay computes the delay for the given attempt using exponential
// backoff with jitter
func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	// 80% to 120% of the computed delay
	delay *= 0.8 + rand.Float64()*0.4
	return time.Duration(delay)
}

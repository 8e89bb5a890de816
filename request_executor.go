// request_executor.go
// -------------------
// RequestExecutor wraps a single logical request attempt with bounded retries
// and exponential backoff. Only transport-level failures (connection refused,
// reset, timeout) are retried: once an HTTP response is received, whatever
// its status, it is returned immediately for classification. Retrying
// deterministic 4xx answers would only replay non-idempotent operations.
package relaykit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBackoff caps a single backoff sleep regardless of attempt count.
const maxBackoff = 30 * time.Second

// RequestExecutor performs attempts through the shared client pool.
type RequestExecutor struct {
	pool       *clientPool
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

func NewRequestExecutor(pool *clientPool, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RequestExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestExecutor{
		pool:       pool,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// ExecuteWithRetry runs op up to maxRetries+1 times, sleeping
// baseDelay * 2^attempt between attempts. Backoff sleeps suspend only the
// calling goroutine and abort promptly when ctx is done. After exhaustion the
// last transport error is returned wrapped, never swallowed.
func (re *RequestExecutor) ExecuteWithRetry(ctx context.Context, op func(client *http.Client) (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= re.maxRetries; attempt++ {
		if attempt > 0 {
			wait := re.calculateBackoff(attempt - 1)
			re.logger.Debug("retrying request",
				"attempt", attempt+1,
				"max_attempts", re.maxRetries+1,
				"backoff", wait,
				"error", lastErr)
			retriesTotal.Inc()

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		resp, err := op(re.pool.acquire())
		if err == nil {
			// A received response, error status or not, goes straight to
			// classification.
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", re.maxRetries+1, lastErr)
}

// calculateBackoff returns baseDelay * 2^attempt capped at maxBackoff.
func (re *RequestExecutor) calculateBackoff(attempt int) time.Duration {
	backoff := re.baseDelay * (1 << attempt)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	return backoff
}

// isRetryableError reports whether a transport error is worth another
// attempt. Context cancellation never is; per-attempt timeouts and the usual
// transient network conditions are.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryableError(urlErr.Err)
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network unreachable",
		"eof",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

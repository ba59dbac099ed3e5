// Package retry wraps remote adapter calls (embedding, LLM) in the bounded
// exponential backoff required by spec §4.14: up to 3 attempts, 200ms base,
// doubling, only transient errors retried.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentmem/agentmem/internal/apperr"
)

// DefaultMaxAttempts and DefaultBaseDelay match the spec's defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
)

// transientMarkers are message substrings classified transient per §4.14:
// 5xx status markers and timeout/connection terms. 4xx (auth, invalid
// request) is never in this list and is therefore permanent.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"temporary failure",
	"503",
	"502",
	"500",
	"429", // rate limit: transient, caller should back off and retry
}

// IsTransient classifies err using apperr's explicit flag first, then falls
// back to message/type inspection for errors the adapters didn't wrap.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Do runs op up to maxAttempts times with exponential backoff starting at
// baseDelay and doubling, retrying only when IsTransient(err). Cancellation
// propagates immediately: a cancelled context aborts both the in-flight
// call and any pending wait.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed time
	bounded := backoff.WithMaxRetries(bo, uint64(maxAttempts-1))

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, backoff.WithContext(bounded, ctx))

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

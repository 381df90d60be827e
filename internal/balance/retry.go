package balance

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// isRateLimitError reports whether an RPC error is a provider throttle worth
// retrying.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "-32005")
}

// withRetry runs op, retrying throttled calls with exponential backoff.
// Any other error stops immediately.
func withRetry[T any](ctx context.Context, r *Reader, what string, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryDelay
	policy.MaxInterval = r.retryDelay * 10

	notify := func(err error, d time.Duration) {
		r.logger.Debug("rpc throttled, retrying",
			zap.String("call", what), zap.Duration("backoff", d), zap.Error(err))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !isRateLimitError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(notify))
}

package chainpool

import (
	"context"
	"errors"
)

// WithRetry runs op against the current endpoint for network. On any error
// it advances the pool to the next endpoint and tries again, up to
// maxAttempts total attempts. After exhausting attempts it returns the last
// observed error unchanged: callers classify chain-level errors (insufficient
// funds, nonce too low) from the original text, so wrapping would destroy
// information.
//
// This is the only retry site. Nothing layered above re-retries, which keeps
// a flaky network from turning into a retry storm.
func WithRetry[T any](ctx context.Context, pool *Pool, network string, maxAttempts int, op func(ctx context.Context, client Client) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		client, err := pool.Client(network)
		if err != nil {
			var confErr *ConfigurationError
			if errors.As(err, &confErr) {
				// Misconfiguration does not improve with failover.
				return zero, err
			}
			lastErr = err
			pool.Advance(network)
			continue
		}

		res, err := op(ctx, client)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		pool.Advance(network)
	}
	return zero, lastErr
}

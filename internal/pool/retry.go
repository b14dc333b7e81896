package pool

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// AcquireWithRetry wraps Acquire with exponential backoff over retryable
// failures (a pool that reports unhealthy, or a momentary acquire
// timeout under load). Non-retryable errors return immediately.
func AcquireWithRetry(ctx context.Context, p *Pool, maxElapsed time.Duration) (*Handle, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxElapsed
	bctx := backoff.WithContext(b, ctx)

	var handle *Handle
	op := func() error {
		h, err := p.Acquire(ctx)
		if err != nil {
			if memcore.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		handle = h
		return nil
	}

	if err := backoff.Retry(op, bctx); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return nil, perm.Err
		}
		return nil, err
	}
	return handle, nil
}

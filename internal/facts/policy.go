package facts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLookupFailure covers every way a remote lookup can fail: transport
// errors, timeouts, non-OK responses and unusable payloads.
var ErrLookupFailure = errors.New("lookup failure")

// Policy is the one timeout/retry policy shared by every remote lookup.
// Callers treat any error it returns as a lookup failure and fail open.
type Policy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout: 3 * time.Second,
		Retries: 1,
		Backoff: 200 * time.Millisecond,
	}
}

// Do runs op with a per-attempt timeout, retrying up to p.Retries times.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retries := max(p.Retries, 0)
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrLookupFailure, ctx.Err())
			case <-time.After(p.Backoff * time.Duration(attempt)):
			}
		}

		attemptCtx, cancel := p.attemptContext(ctx)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, errPermanent) || ctx.Err() != nil {
			break
		}
	}
	if errors.Is(lastErr, ErrLookupFailure) {
		return lastErr
	}
	return fmt.Errorf("%w: %v", ErrLookupFailure, lastErr)
}

func (p Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// errPermanent marks failures a retry cannot fix (4xx, bad payload).
var errPermanent = errors.New("permanent")

func permanent(err error) error {
	return fmt.Errorf("%w: %w", errPermanent, err)
}

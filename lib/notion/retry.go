package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// policyBackOff yields the delay before each retry and stops once the
// attempt budget of the policy is spent.
type policyBackOff struct {
	policy  RetryPolicy
	retries int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.retries++
	if b.retries >= b.policy.attempts() {
		return backoff.Stop
	}
	return b.policy.Delay(b.retries)
}

func (b *policyBackOff) Reset() {
	b.retries = 0
}

// retry sends the request until it succeeds, fails with a non-retryable error, or
// the attempt budget is spent. It returns the number of attempts made.
func (c *Client) retry(ctx context.Context, policy RetryPolicy, spec RequestSpec) (Response, int, error) {
	var res Response
	attempts := 0

	operation := func() error {
		attempts++
		if c.limiter != nil {
			err := c.limiter.Wait(ctx)
			if err != nil {
				return backoff.Permanent(&Error{Kind: KindCanceled, Err: err})
			}
		}
		out, err := c.transport.Send(ctx, spec)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = out
		return nil
	}
	notify := func(err error, delay time.Duration) {
		slog.WarnContext(
			ctx, "retrying request",
			"method", spec.Method,
			"path", spec.Path,
			"attempt", attempts,
			"max_attempts", policy.attempts(),
			"delay", delay,
			"err", err,
		)
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}
	err := backoff.RetryNotifyWithTimer(
		operation,
		backoff.WithContext(&policyBackOff{policy: policy}, ctx),
		notify,
		timer,
	)
	if err == nil {
		return res, attempts, nil
	}

	var nerr *Error
	if !errors.As(err, &nerr) {
		// the context ended while waiting between attempts
		return Response{}, attempts, &Error{Kind: KindCanceled, Err: err}
	}
	if nerr.Kind.Retryable() && attempts > 1 {
		return Response{}, attempts, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
	}
	return Response{}, attempts, err
}

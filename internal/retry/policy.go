// Package retry holds the backoff policy for transient pipeline faults,
// separated from the orchestrator so the schedule is testable on its own.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prepstack/interviewflow/internal/faults"
)

// Policy decides, per fault kind and attempt number, between retrying after a
// delay and giving up. Only transient kinds (service, extraction,
// persistence) are retried; validation, not-found and media faults surface
// immediately.
type Policy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

func Default() Policy {
	return Policy{
		MaxAttempts:         4,
		InitialInterval:     2 * time.Second,
		MaxInterval:         60 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.25,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Notify observes each retry decision: the failed attempt (1-based), the
// fault that caused it and the pause before the next attempt.
type Notify func(err error, attempt int, delay time.Duration)

// Do runs op up to MaxAttempts times. It returns nil on the first success,
// the original error as soon as a non-transient fault appears, and the last
// error once attempts are exhausted.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, notify Notify) error {
	p = p.normalized()

	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		MaxInterval:         p.MaxInterval,
		Multiplier:          p.Multiplier,
		RandomizationFactor: p.RandomizationFactor,
	}
	schedule.Reset()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !faults.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := schedule.NextBackOff()
		if notify != nil {
			notify(lastErr, attempt, delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs operations again with exponential backoff when they
// fail for transient reasons.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/voicevault/core"
)

// ErrInvalidPolicy indicates a Policy that allows no attempts.
var ErrInvalidPolicy = errors.New("retry policy needs at least one attempt")

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts counts the first call. Must be > 0.
	MaxAttempts int

	// BaseDelay is the pause after the first failure; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps a single pause. Zero means uncapped.
	MaxDelay time.Duration

	// ShouldRetry decides whether a failure is worth another attempt.
	// Nil uses core.IsRetryable.
	ShouldRetry func(error) bool
}

// DefaultPolicy retries transient failures three times in total.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Always retries every failure.
func Always(error) bool { return true }

// delay returns the pause before attempt+1.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls operation until it succeeds, returns a failure ShouldRetry
// rejects, or MaxAttempts is reached. The last error is returned as is.
func Do(ctx context.Context, p Policy, operation func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidPolicy
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = core.IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !shouldRetry(lastErr) || attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt)
		slog.Debug("operation failed, will retry",
			"attempt", attempt, "max_attempts", p.MaxAttempts, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

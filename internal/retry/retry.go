/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package retry runs outbound calls under a bounded exponential backoff policy.
package retry

import (
	"cloud.google.com/go/logging"
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"time"

	"github.com/ajjensen13/pricehistory/internal/util"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Policy describes how an operation is retried. The delay before attempt n+1 is
// BaseDelay * 2^(n-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable reports whether err is transient. A nil Retryable retries every error.
	Retryable func(err error) bool
	// Notify is called before each wait. A nil Notify logs through the context logger.
	Notify backoff.Notify
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, Retryable: retryable}
}

// Failure is returned when every attempt failed with a transient error.
type Failure struct {
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err is an exhausted-retries failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff() backoff.BackOff {
	result := backoff.NewExponentialBackOff()
	result.InitialInterval = p.BaseDelay
	result.Multiplier = 2
	result.RandomizationFactor = 0
	result.MaxInterval = p.BaseDelay << uint(p.attempts())
	result.MaxElapsedTime = 0
	result.Reset()
	return backoff.WithMaxRetries(result, uint64(p.attempts()-1))
}

func (p Policy) notifier(ctx context.Context) backoff.Notify {
	if p.Notify != nil {
		return p.Notify
	}
	return func(err error, d time.Duration) {
		util.Logf(ctx, logging.Info, "request failed, waiting %v before retrying: %v", d, err)
	}
}

// Do calls op until it succeeds, fails permanently, or the policy runs out of attempts.
// Permanent errors are returned as they are; exhaustion returns a *Failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result    T
		attempts  int
		permanent bool
	)

	err := backoff.RetryNotify(func() error {
		attempts++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(p.backOff(), ctx), p.notifier(ctx))

	switch {
	case err == nil:
		return result, nil
	case permanent:
		return result, err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return result, err
	default:
		return result, &Failure{Attempts: attempts, Err: err}
	}
}

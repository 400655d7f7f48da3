// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is the concurrency-limiter primitive callers may wrap around
// a batch of Run calls; the engine itself places no implicit limit on
// concurrent commands.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns a Limiter admitting at most n concurrent holders.
func NewLimiter(n int64) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(n)}
}

// Do blocks until a slot is free (or ctx is done) and then runs fn,
// releasing the slot when fn returns.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}

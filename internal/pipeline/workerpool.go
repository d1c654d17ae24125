package pipeline

import (
	"context"

	sqlragerrors "github.com/sqlrag/engine/internal/errors"
)

// Semaphore is a bounded work queue providing the backpressure spec.md §5
// requires: "A bounded work queue per worker pool rejects with Overloaded
// when full."
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore builds a Semaphore with capacity concurrent slots.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{tokens: make(chan struct{}, capacity)}
}

// Acquire reserves a slot without blocking; it returns an Overloaded
// SQLRAGError immediately if the pool is full, rather than queuing the
// caller indefinitely (spec.md §5: "no implicit fan-out").
func (s *Semaphore) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.tokens <- struct{}{}:
		return func() { <-s.tokens }, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return nil, sqlragerrors.New(sqlragerrors.ErrCodeOverloaded, "worker pool is at capacity", nil)
}

// InUse reports the current number of reserved slots, for metrics.
func (s *Semaphore) InUse() int {
	return len(s.tokens)
}

// Capacity reports the total number of slots.
func (s *Semaphore) Capacity() int {
	return cap(s.tokens)
}

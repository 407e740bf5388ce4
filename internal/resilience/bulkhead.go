package resilience

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig bounds concurrent in-flight calls.
type BulkheadConfig struct {
	MaxConcurrent int64
	MaxWait       time.Duration
}

// Bulkhead admits a bounded number of concurrent callers. A caller beyond
// the limit waits up to MaxWait for a slot and then fails with
// ErrCapacityExceeded.
type Bulkhead struct {
	sem     *semaphore.Weighted
	maxWait time.Duration
}

func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{
		sem:     semaphore.NewWeighted(maxConcurrent),
		maxWait: cfg.MaxWait,
	}
}

// Acquire claims a slot, waiting up to the configured limit. The caller
// must Release after the protected call finishes.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrCapacityExceeded
	}
	return nil
}

func (b *Bulkhead) Release() {
	b.sem.Release(1)
}

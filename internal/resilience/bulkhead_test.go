package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkheadAdmitsUpToLimit(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 3, MaxWait: 50 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	err := b.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	b.Release()
	assert.NoError(t, b.Acquire(ctx))
}

func TestBulkheadWaitsForSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx))

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Release()
		close(released)
	}()

	assert.NoError(t, b.Acquire(ctx))
	<-released
}

func TestBulkheadHonorsCallerCancellation(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

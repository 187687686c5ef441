package processor

import (
	"context"
	"sync"
)

// ConcLimiter bounds the number of goroutines a stage runs at once.
type ConcLimiter struct {
	wg   sync.WaitGroup
	pool chan struct{}
}

func NewConcLimiter(cLevel int) *ConcLimiter {
	if cLevel <= 0 {
		cLevel = 1
	}
	return &ConcLimiter{pool: make(chan struct{}, cLevel)}
}

// Increase takes a slot, blocking while all are busy. It fails only when
// ctx is done first.
func (c *ConcLimiter) Increase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.pool <- struct{}{}:
		c.wg.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ConcLimiter) Decrease() {
	<-c.pool
	c.wg.Done()
}

// Wait blocks until every taken slot has been released.
func (c *ConcLimiter) Wait() {
	c.wg.Wait()
}

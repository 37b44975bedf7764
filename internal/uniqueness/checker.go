// Package uniqueness debounces remote "is this value taken" lookups. A newer
// check for the same key cancels the older one, and only the newest result is
// ever reported.
package uniqueness

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSuperseded = errors.New("superseded by a newer check")

// Lookup reports whether value is already taken.
type Lookup func(ctx context.Context, value string) (bool, error)

type pending struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

type Checker struct {
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	pending map[string]pending
}

func NewChecker(delay time.Duration) *Checker {
	return &Checker{
		delay:   delay,
		pending: make(map[string]pending),
	}
}

// Check waits out the debounce window, then runs lookup. It returns
// ErrSuperseded if another Check for key started in the meantime, and the
// context's cause if ctx ends first.
func (c *Checker) Check(ctx context.Context, key string, value string, lookup Lookup) (bool, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	if prev, ok := c.pending[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	c.pending[key] = pending{seq: seq, cancel: cancel}
	c.mu.Unlock()
	defer c.release(key, seq)

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, context.Cause(ctx)
		case <-timer.C:
		}
	}

	taken, err := lookup(ctx, value)
	if !c.current(key, seq) {
		return false, ErrSuperseded
	}
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return false, cause
		}
		return false, err
	}
	return taken, nil
}

func (c *Checker) current(key string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key].seq == seq
}

func (c *Checker) release(key string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[key].seq == seq {
		delete(c.pending, key)
	}
}

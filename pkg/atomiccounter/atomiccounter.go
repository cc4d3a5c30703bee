// Package atomiccounter provides a small lock-free counter for
// per-tick action stats, using the same atomic.Int32 pattern a
// concurrent syncer uses for its in-flight operation count.
package atomiccounter

import "sync/atomic"

// Counter is a zero-value-ready atomic int32 counter.
type Counter struct {
	count atomic.Int32
}

// Increment adds 1 and returns the new value.
func (c *Counter) Increment() int32 {
	return c.count.Add(1)
}

// Count returns the current value.
func (c *Counter) Count() int32 {
	return c.count.Load()
}

// Reset zeroes the counter.
func (c *Counter) Reset() {
	c.count.Store(0)
}

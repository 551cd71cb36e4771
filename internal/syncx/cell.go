// Package syncx provides the small synchronization primitives the engine
// needs: a guarded latest-value cell and a bounded history ring.
package syncx

import "sync"

// Cell is a mutex-guarded single value, used for "last published state"
// style slots where readers take a short read lock.
type Cell[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Store replaces the value.
func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// Swap replaces the value and returns the previous one.
func (c *Cell[T]) Swap(v T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.value
	c.value = v
	return old
}

// Update runs fn under the write lock, passing a pointer for mutation.
func (c *Cell[T]) Update(fn func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.value)
}

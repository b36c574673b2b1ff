// Package handoff moves a value from boot code into a context that cannot
// receive call arguments, exactly once.
package handoff

import "sync/atomic"

// Cell is a one-shot slot: filled once by Stage and emptied once by Claim.
type Cell[T any] struct {
	slot   atomic.Pointer[T]
	staged atomic.Bool
}

// New creates a Cell holding v.
func New[T any](v *T) *Cell[T] {
	c := &Cell[T]{}
	c.Stage(v)
	return c
}

// Stage fills the cell. Staging nil or staging twice panics.
func (c *Cell[T]) Stage(v *T) {
	if v == nil {
		panic("handoff: nil value")
	}
	if !c.staged.CompareAndSwap(false, true) {
		panic("handoff: already staged")
	}
	c.slot.Store(v)
}

// Claim atomically takes the value and leaves the cell permanently
// empty. Only the first Claim returns the value, every other returns
// nil and false.
func (c *Cell[T]) Claim() (*T, bool) {
	v := c.slot.Swap(nil)
	return v, v != nil
}

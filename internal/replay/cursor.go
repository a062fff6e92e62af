package replay

import "fmt"

// Cursor tracks the current record index over a store of count records.
// A failed transition leaves the index unchanged.
type Cursor struct {
	index int
	count int
}

// NewCursor returns a cursor at index 0.
func NewCursor(count int) *Cursor {
	return &Cursor{count: count}
}

// Index returns the current position.
func (c *Cursor) Index() int {
	return c.index
}

// Next moves to the first index after the cursor accepted by match.
func (c *Cursor) Next(match func(int) bool) error {
	for i := c.index + 1; i < c.count; i++ {
		if match == nil || match(i) {
			c.index = i
			return nil
		}
	}
	return ErrNoNextRecord
}

// Previous moves to the first index before the cursor accepted by match.
func (c *Cursor) Previous(match func(int) bool) error {
	for i := c.index - 1; i >= 0; i-- {
		if match == nil || match(i) {
			c.index = i
			return nil
		}
	}
	return ErrNoPreviousRecord
}

// JumpTo moves to index if it is in range and accepted by match.
func (c *Cursor) JumpTo(index int, match func(int) bool) error {
	if index < 0 || index >= c.count {
		return fmt.Errorf("%w: %d (valid range 0..%d)", ErrInvalidIndex, index, c.count-1)
	}
	if match != nil && !match(index) {
		return fmt.Errorf("%w: record %d is excluded by the content type filter", ErrInvalidIndex, index)
	}
	c.index = index
	return nil
}

package engine

import "sync/atomic"

// Clock hands out strictly increasing sequence numbers. Every fetch takes one
// when it starts so that a result completing late can be recognised as older
// than a snapshot already applied.
//
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new value. The first call
// returns 1.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

func (c *Clock) Current() int64 {
	return c.seq.Load()
}

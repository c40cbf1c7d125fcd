package passes

import "sync/atomic"

// Clock hands out the sequence numbers that order access records. A record
// is stamped when its open is issued, not when its fingerprint arrives, so
// sorting by Seq gives call order. One clock lives as long as its Detector
// and is never reset between passes. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

package painter

import "sync"

// AutoBufferThreshold is the number of strictly contiguous requests
// required before read-ahead speculation turns on.
const AutoBufferThreshold = 10

// ReadAheadChunks is how many speculative chunks are scheduled past the
// end of a request once auto-buffering is active.
const ReadAheadChunks = 4

// contiguityTracker observes successive user read requests and decides
// when they form a sustained sequential-access pattern worth
// speculating ahead of.
type contiguityTracker struct {
	mu sync.Mutex

	haveLast  bool
	lastEndB  int64 // byte offset one past the end of the last request
	count     int
	autoBuffer bool
}

// observe records a new request [startB, endB) and reports whether
// auto-buffering is now active. A request that does not begin exactly
// where the previous one ended resets the streak.
func (c *contiguityTracker) observe(startB, endB int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveLast && startB == c.lastEndB {
		c.count++
	} else {
		c.count = 0
		c.autoBuffer = false
	}
	c.haveLast = true
	c.lastEndB = endB

	if c.count >= AutoBufferThreshold {
		c.autoBuffer = true
	}
	return c.autoBuffer
}

func (c *contiguityTracker) isAutoBufferOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoBuffer
}

// Package window implements a bounded-capacity, second-resolution rolling
// counter: a small deque of (second, count) pairs that approximates a
// W-second sliding sum without storing one entry per event.
package window

import (
	"math"
	"time"
)

const maxSum = math.MaxUint16

type entry struct {
	ts    time.Time
	count uint32
}

// RollingWindow holds at most capacity entries, one per distinct wall-clock
// second, ordered by non-decreasing timestamp. It is not safe for concurrent
// use; callers (Bucket, Monitor) serialize access.
type RollingWindow struct {
	capacity int
	entries  []entry
}

// New returns a RollingWindow with the given capacity in seconds. Capacity
// also doubles as the width W of the sliding window it approximates.
func New(capacity int) *RollingWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &RollingWindow{capacity: capacity}
}

// Len reports the current number of distinct-second entries held.
func (w *RollingWindow) Len() int { return len(w.entries) }

// Update records value at the given instant, merging it into the existing
// entry for that wall-clock second if one exists.
//
// Eviction is strict: an entry exactly capacity seconds older than now is
// retained, only entries strictly older than that are dropped. now is not
// required to be monotonic; a regression is tolerated by skipping eviction
// and appending a new entry (or, if the window is already full, by
// dropping the sample) rather than panicking.
func (w *RollingWindow) Update(value uint32, now time.Time) {
	width := time.Duration(w.capacity) * time.Second

	// 1. Evict head while front entry's age exceeds capacity.
	i := 0
	for i < len(w.entries) {
		age := now.Sub(w.entries[i].ts)
		if age > width {
			i++
			continue
		}
		break
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}

	// 2. Coalesce into the back entry if it falls in the same whole second.
	if n := len(w.entries); n > 0 {
		back := &w.entries[n-1]
		d := now.Sub(back.ts)
		if d >= 0 && d < time.Second {
			back.count += value
			return
		}
	}

	// 3. Append, or drop the sample if the window is already at capacity
	// (this only happens when eviction freed no room, i.e. under clock
	// regression or skew; the sample is lost rather than the invariant
	// len <= capacity being violated).
	if len(w.entries) < w.capacity {
		w.entries = append(w.entries, entry{ts: now, count: value})
	}
}

// Sum returns the total count across all held entries, saturating at the
// range of an unsigned 16-bit integer. The running total is accumulated in
// a wider type so a mid-sum overflow cannot corrupt the result.
func (w *RollingWindow) Sum() uint16 {
	var total uint64
	for _, e := range w.entries {
		total += uint64(e.count)
	}
	if total > maxSum {
		return maxSum
	}
	return uint16(total)
}

package window

import "time"

// Bucket is the per-key accounting state: a RollingWindow plus the two
// instants Monitor needs to decide whether a threshold breach should be
// escalated into an alert. Bucket never makes that decision itself — see
// Monitor.ProcessKey — it only reports breach and tracks its own local
// last-alert hint.
type Bucket struct {
	Window       *RollingWindow
	LastUpdateTS time.Time
	LastAlertTS  *time.Time // nil until Monitor records a declared alert
}

// NewBucket creates a bucket with a fresh W-second window, initialised at
// now.
func NewBucket(windowSeconds int, now time.Time) *Bucket {
	return &Bucket{
		Window:       New(windowSeconds),
		LastUpdateTS: now,
	}
}

// Update records one hit at now and advances LastUpdateTS.
func (b *Bucket) Update(now time.Time) {
	b.Window.Update(1, now)
	b.LastUpdateTS = now
}

// CheckThreshold reports whether the window's current sum strictly exceeds
// threshold.
func (b *Bucket) CheckThreshold(threshold uint16) bool {
	return b.Window.Sum() > threshold
}

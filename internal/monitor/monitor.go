// Package monitor owns the bucket table: turning an incoming key into a
// window update plus a threshold-violation decision, and evicting idle
// buckets on a 2*W cadence. A Monitor is single-writer by contract — every
// call to ProcessKey must come from one goroutine (the pipeline's monitor
// stage).
package monitor

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywalker-88/ja3sentry/internal/whitelist"
	"github.com/skywalker-88/ja3sentry/internal/window"
	"github.com/skywalker-88/ja3sentry/pkg/metrics"
)

// Config controls Monitor behaviour; it mirrors the subset of the
// project-wide configuration the monitor needs.
type Config struct {
	Threshold        uint16
	WindowSeconds    int
	LogCreateBuckets bool
}

// Monitor holds the BucketTable and drives the per-key whitelist-filter,
// update, and violation-decision procedure.
type Monitor struct {
	cfg       Config
	whitelist *whitelist.Whitelist
	log       zerolog.Logger

	buckets    map[string]*window.Bucket
	lastGC     time.Time
	gcInterval time.Duration
}

// New constructs a Monitor. now seeds the initial GC clock so the first GC
// sweep happens 2*W seconds after startup, not immediately.
func New(cfg Config, wl *whitelist.Whitelist, log zerolog.Logger, now time.Time) *Monitor {
	return &Monitor{
		cfg:        cfg,
		whitelist:  wl,
		log:        log,
		buckets:    make(map[string]*window.Bucket),
		lastGC:     now,
		gcInterval: time.Duration(2*cfg.WindowSeconds) * time.Second,
	}
}

// ProcessKey runs the whitelist filter, get-or-create bucket, update,
// decide, periodic GC sequence for a single key. It returns true iff this
// call is a fresh violation the caller must propagate to the Alerter.
//
// ProcessKey never sets Bucket.LastAlertTS itself — the caller records it
// through MarkAlerted only once the Alerter has accepted the event (the
// pipeline's monitor stage does so on the Alerter's confirmation), keeping
// the Alerter's ledger the single source of truth for dedup.
func (m *Monitor) ProcessKey(key string, now time.Time) bool {
	fingerprint := key
	if idx := strings.IndexByte(key, '-'); idx >= 0 {
		fingerprint = key[:idx]
	}
	if m.whitelist != nil && m.whitelist.IsJA3Whitelisted(fingerprint) {
		return false
	}

	b, created := m.getOrCreate(key, now)
	if created {
		metrics.BucketsCreatedTotal.Inc()
		if m.cfg.LogCreateBuckets {
			m.log.Info().Str("key", key).Int("window", m.cfg.WindowSeconds).Msg("bucket created")
		}
	}

	b.Update(now)

	violation := b.CheckThreshold(m.cfg.Threshold) && m.pastReAlertWindow(b, now)
	if violation {
		metrics.ViolationsTotal.Inc()
		m.log.Info().
			Str("key", key).
			Uint16("threshold", m.cfg.Threshold).
			Int("window", m.cfg.WindowSeconds).
			Msg("threshold violation")
	}

	m.periodicGC(now)

	return violation
}

// MarkAlerted records that key's bucket has an outstanding alert as of now.
// Called by the caller only after the Alerter confirms the alert was sent
// (or recorded, in dry-run) — this keeps Bucket.LastAlertTS a fast local
// hint that is never wrong in the "suppress too eagerly" direction.
func (m *Monitor) MarkAlerted(key string, now time.Time) {
	if b, ok := m.buckets[key]; ok {
		ts := now
		b.LastAlertTS = &ts
	}
}

func (m *Monitor) pastReAlertWindow(b *window.Bucket, now time.Time) bool {
	if b.LastAlertTS == nil {
		return true
	}
	return elapsed(*b.LastAlertTS, now) > time.Duration(m.cfg.WindowSeconds)*time.Second
}

func (m *Monitor) getOrCreate(key string, now time.Time) (*window.Bucket, bool) {
	if b, ok := m.buckets[key]; ok {
		return b, false
	}
	b := window.NewBucket(m.cfg.WindowSeconds, now)
	m.buckets[key] = b
	return b, true
}

// periodicGC retains only buckets updated within the last 2*W seconds,
// running at most once every 2*W seconds.
func (m *Monitor) periodicGC(now time.Time) {
	if elapsed(m.lastGC, now) < m.gcInterval {
		return
	}
	m.cleanupOldBuckets(now)
	m.lastGC = now
}

// cleanupOldBuckets is exposed separately from periodicGC so tests (and a
// future admin endpoint) can force a sweep without waiting on the cadence.
// Invoking it twice with no intervening updates is idempotent: the second
// call finds nothing newly stale to remove.
func (m *Monitor) cleanupOldBuckets(now time.Time) {
	before := len(m.buckets)
	horizon := time.Duration(2*m.cfg.WindowSeconds) * time.Second
	for k, b := range m.buckets {
		if elapsed(b.LastUpdateTS, now) > horizon {
			delete(m.buckets, k)
		}
	}
	metrics.ActiveBuckets.Set(float64(len(m.buckets)))
	if after := len(m.buckets); after != before {
		m.log.Info().Int("before", before).Int("after", after).Msg("bucket gc")
	}
}

// elapsed returns now-since, treating a clock regression (since after now)
// as zero elapsed time rather than a negative duration.
func elapsed(since, now time.Time) time.Duration {
	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return d
}

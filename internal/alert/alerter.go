package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywalker-88/ja3sentry/pkg/metrics"
)

// BlocklistClient is the external collaborator the Alerter posts to. The
// concrete implementation (internal/blocklist) talks HTTP/JSON; tests
// inject a fake.
type BlocklistClient interface {
	Post(ctx context.Context, key string, blockSeconds int, realert bool) error
}

// Config controls Alerter behaviour.
type Config struct {
	WindowSeconds int
	BlockSeconds  int
}

// Alerter owns the AlertLedger and the BlocklistClient. Single-writer by
// contract: every call to Alert must come from one goroutine (the
// pipeline's alert stage).
type Alerter struct {
	cfg    Config
	client BlocklistClient
	ledger *Ledger
	log    zerolog.Logger
}

// New constructs an Alerter, seeding the ledger's GC clock at now.
func New(cfg Config, client BlocklistClient, log zerolog.Logger, now time.Time) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: client,
		ledger: NewLedger(now),
		log:    log,
	}
}

// Alert runs the dedup/re-alert procedure: GC, then lookup-and-branch
// (suppress / re-alert / fresh alert). It reports whether a post was
// attempted and accepted, so callers (Monitor, via MarkAlerted) can
// record the Bucket-local fast-path hint.
func (a *Alerter) Alert(ctx context.Context, key string, now time.Time) bool {
	window := time.Duration(a.cfg.WindowSeconds) * time.Second
	a.ledger.GC(now, window)
	metrics.ActiveLedgerEntries.Set(float64(a.ledger.Len()))

	last, ok := a.ledger.Get(key)
	if !ok {
		return a.post(ctx, key, now, false)
	}

	if elapsed(last, now) < window {
		a.log.Warn().Str("key", key).Time("last_alert", last).Msg("alert suppressed: within dedup window")
		metrics.AlertsSuppressedTotal.Inc()
		return false
	}

	return a.post(ctx, key, now, true)
}

func (a *Alerter) post(ctx context.Context, key string, now time.Time, realert bool) bool {
	if err := a.client.Post(ctx, key, a.cfg.BlockSeconds, realert); err != nil {
		a.log.Error().Err(err).Str("key", key).Bool("realert", realert).Msg("alert transport error")
		metrics.AlertTransportErrorsTotal.Inc()
		return false
	}

	a.ledger.Record(key, now)
	metrics.ActiveLedgerEntries.Set(float64(a.ledger.Len()))
	label := "false"
	if realert {
		label = "true"
	}
	metrics.AlertsPostedTotal.WithLabelValues(label).Inc()
	a.log.Warn().Str("key", key).Bool("realert", realert).Msg("alert posted")
	return true
}

// Package pipeline wires capture, monitor, and alert into three
// single-writer goroutines: Ingest turns raw packets into keys, Monitor
// turns keys into violation decisions, and Alerter turns violations into
// enforcement POSTs.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywalker-88/ja3sentry/internal/alert"
	"github.com/skywalker-88/ja3sentry/internal/capture"
	"github.com/skywalker-88/ja3sentry/internal/monitor"
	"github.com/skywalker-88/ja3sentry/internal/whitelist"
	"github.com/skywalker-88/ja3sentry/pkg/metrics"
)

// noneFingerprint substitutes for an absent JA3 digest so every event
// still composes into a key.
const noneFingerprint = "None"

// Config controls queue sizing and key composition; everything else
// lives on the Monitor/Alerter it's given.
type Config struct {
	AggregateByIP    bool
	MonitorQueueSize int
	AlertQueueSize   int
}

// monitorJob is what Ingest hands to Monitor: just the composed key and
// the observation time (real clock in live mode; file-mode replay has no
// timing fidelity of its own, so it also uses wall-clock).
type monitorJob struct {
	key string
	now time.Time
}

// alertJob flows Monitor -> Alerter on a violation, and is reused for the
// Alerter -> Monitor confirmation once the post succeeds.
type alertJob struct {
	key string
	now time.Time
}

// Pipeline owns the three bounded channels connecting its stages. The
// third, confirmQueue, exists so that Monitor.MarkAlerted is only ever
// called from Monitor's own goroutine: Monitor owns its BucketTable
// exclusively, so the Alerter cannot call back into it directly from a
// different goroutine without racing the map.
type Pipeline struct {
	cfg       Config
	source    capture.PacketSource
	whitelist *whitelist.Whitelist
	monitor   *monitor.Monitor
	alerter   *alert.Alerter
	log       zerolog.Logger

	monitorQueue chan monitorJob
	alertQueue   chan alertJob
	confirmQueue chan alertJob
}

// New wires a Pipeline over an already-constructed Whitelist, Monitor, and
// Alerter. The Whitelist is consulted here, at Ingest, for IP-based skips:
// fingerprint-based skips happen later, inside Monitor, since they need
// the composed key rather than the raw event.
func New(cfg Config, source capture.PacketSource, wl *whitelist.Whitelist, mon *monitor.Monitor, alerter *alert.Alerter, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		source:       source,
		whitelist:    wl,
		monitor:      mon,
		alerter:      alerter,
		log:          log,
		monitorQueue: make(chan monitorJob, cfg.MonitorQueueSize),
		alertQueue:   make(chan alertJob, cfg.AlertQueueSize),
		confirmQueue: make(chan alertJob, cfg.AlertQueueSize),
	}
}

// Run blocks until all three stages have drained.
//
// Shutdown order is leaves-last: ctx cancellation (live mode) or source
// exhaustion (file mode) stops Ingest, which
// closes monitorQueue. Monitor keeps running after monitorQueue closes
// — it still owes confirmQueue deliveries back from the Alerter — so it
// closes alertQueue as soon as monitorQueue is drained, then continues
// draining confirmQueue until the Alerter closes it. The Alerter's range
// loop over alertQueue ends when Monitor closes it, at which point the
// Alerter closes confirmQueue and exits. Only then does Monitor exit,
// and only then does Run return.
func (p *Pipeline) Run(ctx context.Context) error {
	alerterDone := make(chan struct{})
	go func() {
		defer close(alerterDone)
		p.alerterLoop()
	}()

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		p.monitorLoop()
	}()

	err := p.ingestLoop(ctx)

	<-monitorDone
	<-alerterDone
	return err
}

// ingestLoop is the single writer to monitorQueue.
func (p *Pipeline) ingestLoop(ctx context.Context) error {
	defer close(p.monitorQueue)

	for {
		ev, ok, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
		if !ev.Interesting() {
			metrics.PacketsIngestedTotal.WithLabelValues("ignored").Inc()
			continue
		}
		if p.whitelist.IsIPWhitelisted(ev.Source) {
			metrics.PacketsIngestedTotal.WithLabelValues("ip_whitelisted").Inc()
			continue
		}
		metrics.PacketsIngestedTotal.WithLabelValues("interesting").Inc()

		key := p.composeKey(ev.Fingerprint, ev.Source)
		job := monitorJob{key: key, now: time.Now()}

		select {
		case p.monitorQueue <- job:
			metrics.MonitorQueueDepth.Set(float64(len(p.monitorQueue)))
		case <-ctx.Done():
			return nil
		}
	}
}

// composeKey builds `<fp>` or `<fp>-<ip>` per aggregate_by_ip, with the
// literal "None" substitution for an absent fingerprint.
func (p *Pipeline) composeKey(fingerprint, sourceIP string) string {
	fp := fingerprint
	if fp == "" {
		fp = noneFingerprint
	}
	if !p.cfg.AggregateByIP {
		return fp
	}
	return fp + "-" + sourceIP
}

// monitorLoop is the single writer (and sole owner) of Monitor's
// BucketTable. It reads monitorQueue and confirmQueue, and is the single
// writer to alertQueue. It exits once monitorQueue has closed and every
// confirmation the Alerter still owes has arrived on confirmQueue.
func (p *Pipeline) monitorLoop() {
	mq := p.monitorQueue
	cq := p.confirmQueue
	alertQueueClosed := false

	for mq != nil || cq != nil {
		select {
		case job, ok := <-mq:
			if !ok {
				mq = nil
				if !alertQueueClosed {
					close(p.alertQueue)
					alertQueueClosed = true
				}
				continue
			}
			metrics.MonitorQueueDepth.Set(float64(len(p.monitorQueue)))
			if p.monitor.ProcessKey(job.key, job.now) {
				p.alertQueue <- alertJob{key: job.key, now: job.now}
				metrics.AlertQueueDepth.Set(float64(len(p.alertQueue)))
			}

		case confirm, ok := <-cq:
			if !ok {
				cq = nil
				continue
			}
			p.monitor.MarkAlerted(confirm.key, confirm.now)
		}
	}
}

// alerterLoop is the single writer to the Alerter's ledger and the sole
// reader of alertQueue. On a successful post (including dry-run
// synthetic success) it reports back on confirmQueue so Monitor's own
// goroutine can call MarkAlerted — the ledger stays the authoritative
// dedup source and Monitor never sets LastAlertTS itself.
func (p *Pipeline) alerterLoop() {
	defer close(p.confirmQueue)
	ctx := context.Background()
	for job := range p.alertQueue {
		metrics.AlertQueueDepth.Set(float64(len(p.alertQueue)))
		if p.alerter.Alert(ctx, job.key, job.now) {
			p.confirmQueue <- alertJob{key: job.key, now: job.now}
		}
	}
}

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywalker-88/ja3sentry/internal/alert"
	"github.com/skywalker-88/ja3sentry/internal/capture"
	"github.com/skywalker-88/ja3sentry/internal/monitor"
	"github.com/skywalker-88/ja3sentry/internal/whitelist"
)

// fakeSource replays a fixed, finite slice of events, like FileSource
// would, without touching a real capture file.
type fakeSource struct {
	events []*capture.Event
	i      int
}

func (s *fakeSource) Next(ctx context.Context) (*capture.Event, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	if s.i >= len(s.events) {
		return nil, false, nil
	}
	ev := s.events[s.i]
	s.i++
	return ev, true, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeAlertClient records every post it receives; safe for concurrent
// use since the Alerter is the sole caller but tests inspect it after
// Run returns.
type fakeAlertClient struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAlertClient) Post(_ context.Context, key string, _ int, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return nil
}

func (f *fakeAlertClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func burstEvents(n int, fingerprint, source string) []*capture.Event {
	evs := make([]*capture.Event, n)
	for i := range evs {
		evs[i] = &capture.Event{Source: source, Fingerprint: fingerprint, IsHandshake: true}
	}
	return evs
}

func newTestPipeline(t *testing.T, events []*capture.Event, threshold uint16, aggByIP bool) (*Pipeline, *fakeAlertClient) {
	t.Helper()
	now := time.Now()
	wl, err := whitelist.New(nil, nil)
	if err != nil {
		t.Fatalf("whitelist.New: %v", err)
	}
	mon := monitor.New(monitor.Config{Threshold: threshold, WindowSeconds: 60}, wl, zerolog.Nop(), now)
	client := &fakeAlertClient{}
	alerter := alert.New(alert.Config{WindowSeconds: 60, BlockSeconds: 86400}, client, zerolog.Nop(), now)
	src := &fakeSource{events: events}

	p := New(Config{AggregateByIP: aggByIP, MonitorQueueSize: 1024, AlertQueueSize: 1024}, src, wl, mon, alerter, zerolog.Nop())
	return p, client
}

func TestScenario1BurstBelowThresholdNoAlert(t *testing.T) {
	p, client := newTestPipeline(t, burstEvents(500, "aaaa", "1.2.3.4"), 1000, false)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 0 {
		t.Fatalf("want no alerts below threshold, got %d", client.count())
	}
}

func TestScenario2CrossingThresholdAlertsOnce(t *testing.T) {
	p, client := newTestPipeline(t, burstEvents(1500, "aaaa", "1.2.3.4"), 1000, false)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("want exactly one alert post on first threshold crossing, got %d", client.count())
	}
}

func TestScenario3WhitelistedFingerprintNeverAlerts(t *testing.T) {
	now := time.Now()
	wl, err := whitelist.New(nil, []string{"aaaa"})
	if err != nil {
		t.Fatalf("whitelist.New: %v", err)
	}
	mon := monitor.New(monitor.Config{Threshold: 1000, WindowSeconds: 60}, wl, zerolog.Nop(), now)
	client := &fakeAlertClient{}
	alerter := alert.New(alert.Config{WindowSeconds: 60, BlockSeconds: 86400}, client, zerolog.Nop(), now)
	src := &fakeSource{events: burstEvents(5000, "aaaa", "1.2.3.4")}

	p := New(Config{MonitorQueueSize: 1024, AlertQueueSize: 1024}, src, wl, mon, alerter, zerolog.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 0 {
		t.Fatalf("want whitelisted fingerprint to never alert, got %d", client.count())
	}
}

func TestScenario3bWhitelistedIPNeverAlerts(t *testing.T) {
	now := time.Now()
	wl, err := whitelist.New([]string{"10.0.0.0/8"}, nil)
	if err != nil {
		t.Fatalf("whitelist.New: %v", err)
	}
	mon := monitor.New(monitor.Config{Threshold: 1000, WindowSeconds: 60}, wl, zerolog.Nop(), now)
	client := &fakeAlertClient{}
	alerter := alert.New(alert.Config{WindowSeconds: 60, BlockSeconds: 86400}, client, zerolog.Nop(), now)
	src := &fakeSource{events: burstEvents(5000, "bbbb", "10.1.2.3")}

	p := New(Config{MonitorQueueSize: 1024, AlertQueueSize: 1024}, src, wl, mon, alerter, zerolog.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 0 {
		t.Fatalf("want events from a whitelisted source CIDR to never reach Monitor, got %d alerts", client.count())
	}
}

func TestScenario4AggregateByIPSplitsKeys(t *testing.T) {
	events := append(burstEvents(800, "aaaa", "1.1.1.1"), burstEvents(800, "aaaa", "2.2.2.2")...)
	p, client := newTestPipeline(t, events, 1000, true)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 0 {
		t.Fatalf("want no alert when aggregate_by_ip splits one fingerprint's volume across two keys, got %d", client.count())
	}
}

func TestScenario5AbsentFingerprintUsesNoneLiteral(t *testing.T) {
	events := make([]*capture.Event, 1500)
	for i := range events {
		events[i] = &capture.Event{Source: "9.9.9.9", IsSYN: true}
	}
	p, client := newTestPipeline(t, events, 1000, false)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("want one alert for the None-keyed SYN flood, got %d", client.count())
	}
}

func TestScenario6SyntheticSuccessDedupsSecondBurst(t *testing.T) {
	now := time.Now()
	wl, _ := whitelist.New(nil, nil)
	mon := monitor.New(monitor.Config{Threshold: 1000, WindowSeconds: 60}, wl, zerolog.Nop(), now)
	client := &fakeAlertClient{} // dry-run and real client look identical from here: both "succeed"
	alerter := alert.New(alert.Config{WindowSeconds: 60, BlockSeconds: 86400}, client, zerolog.Nop(), now)

	// Two independent bursts above threshold; the second must be
	// suppressed, proving the first successful post was recorded for
	// dedup (the Alerter's ledger, and Monitor's hint once MarkAlerted
	// has run).
	events := append(burstEvents(1500, "aaaa", "1.2.3.4"), burstEvents(1500, "aaaa", "1.2.3.4")...)
	src := &fakeSource{events: events}
	p := New(Config{MonitorQueueSize: 4096, AlertQueueSize: 4096}, src, wl, mon, alerter, zerolog.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("want second burst suppressed by ledger dedup, got %d posts", client.count())
	}
}

func TestRunReturnsOnContextCancellation(t *testing.T) {
	p, _ := newTestPipeline(t, burstEvents(10, "aaaa", "1.2.3.4"), 1000, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
}

func TestComposeKeySubstitutesNoneLiteral(t *testing.T) {
	p := &Pipeline{cfg: Config{AggregateByIP: true}}
	if got := p.composeKey("", "1.2.3.4"); got != "None-1.2.3.4" {
		t.Fatalf("composeKey = %q, want None-1.2.3.4", got)
	}
	p.cfg.AggregateByIP = false
	if got := p.composeKey("deadbeef", "1.2.3.4"); got != "deadbeef" {
		t.Fatalf("composeKey = %q, want deadbeef", got)
	}
}

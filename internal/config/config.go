// Package config assembles a Config from CLI flags, with an optional
// YAML file merged in underneath them as a source of defaults a flag can
// still override.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds the options a running ja3sentry process needs: capture
// source selection, detection thresholds, the alerting endpoint, and the
// operational wiring (metrics bind address, queue sizes, POST timeout,
// optional config file).
type Config struct {
	Interface string
	File      string

	Threshold     uint16
	WindowSeconds int
	AlertURL      string
	DryRun        bool
	BlockSeconds  uint32

	WhitelistNetworks []string
	WhitelistJA3s     []string
	AggregateByIP     bool
	LogCreateBuckets  bool

	MetricsAddr      string
	PostTimeout      time.Duration
	MonitorQueueSize int
	AlertQueueSize   int
	ConfigFile       string
}

// defaults are the out-of-the-box flag values.
func defaults() Config {
	return Config{
		Threshold:         1000,
		WindowSeconds:     60,
		AlertURL:          "http://localhost:8080/api/block/update",
		BlockSeconds:      86400,
		WhitelistNetworks: []string{"10.0.0.0/8", "192.168.0.0/16"},
		MetricsAddr:       ":9090",
		MonitorQueueSize:  65536,
		AlertQueueSize:    65536,
	}
}

// Parse builds a Config from args (normally os.Args[1:]), applies an
// optional --config YAML overlay underneath the flag values, validates
// the result, and fills derived defaults (post-timeout) that depend on
// other flags.
func Parse(args []string) (*Config, error) {
	cfg := defaults()

	fs := pflag.NewFlagSet("ja3sentry", pflag.ContinueOnError)
	fs.StringVar(&cfg.Interface, "interface", cfg.Interface, "live capture device (mutually exclusive with --file)")
	fs.StringVar(&cfg.File, "file", cfg.File, "capture file to replay")
	thresholdFlag := fs.Uint16("threshold", cfg.Threshold, "violation threshold")
	windowFlag := fs.Int("window", cfg.WindowSeconds, "sliding window width in seconds")
	fs.StringVar(&cfg.AlertURL, "alert-url", cfg.AlertURL, "enforcement endpoint")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "suppress network emission")
	blockSecondsFlag := fs.Uint32("block-seconds", cfg.BlockSeconds, "requested block duration")
	whitelistNetsFlag := fs.StringSlice("whitelist-networks", cfg.WhitelistNetworks, "CSV of CIDRs to skip")
	whitelistJA3sFlag := fs.StringSlice("whitelist-ja3s", cfg.WhitelistJA3s, "CSV of fingerprints to skip")
	fs.BoolVar(&cfg.AggregateByIP, "aggregate-by-ip", cfg.AggregateByIP, "include source IP in the key")
	fs.BoolVar(&cfg.LogCreateBuckets, "log-create-buckets", cfg.LogCreateBuckets, "log each new bucket creation")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "bind address for /health and /metrics")
	postTimeoutFlag := fs.Duration("post-timeout", 0, "BlocklistClient POST timeout (default: min(window, 5s))")
	fs.IntVar(&cfg.MonitorQueueSize, "monitor-queue-size", cfg.MonitorQueueSize, "bounded ingest->monitor queue capacity")
	fs.IntVar(&cfg.AlertQueueSize, "alert-queue-size", cfg.AlertQueueSize, "bounded monitor->alerter queue capacity")
	fs.StringVar(&cfg.ConfigFile, "config", "", "optional YAML overlay merged underneath flag values")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := applyFileOverlay(&cfg, cfg.ConfigFile, fs); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", cfg.ConfigFile, err)
		}
	}

	// Flags explicitly set on the command line always win over the file
	// overlay for the handful of fields koanf doesn't own directly.
	if fs.Changed("threshold") {
		cfg.Threshold = *thresholdFlag
	}
	if fs.Changed("window") {
		cfg.WindowSeconds = *windowFlag
	}
	if fs.Changed("block-seconds") {
		cfg.BlockSeconds = *blockSecondsFlag
	}
	if fs.Changed("whitelist-networks") {
		cfg.WhitelistNetworks = *whitelistNetsFlag
	}
	if fs.Changed("whitelist-ja3s") {
		cfg.WhitelistJA3s = *whitelistJA3sFlag
	}

	if fs.Changed("post-timeout") {
		cfg.PostTimeout = *postTimeoutFlag
	} else if cfg.PostTimeout == 0 {
		cfg.PostTimeout = postTimeoutDefault(cfg.WindowSeconds)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// postTimeoutDefault is min(window, 5s): the per-request timeout should
// never exceed the window width, so a stalled post can't outlive the
// window it's reporting on.
func postTimeoutDefault(windowSeconds int) time.Duration {
	w := time.Duration(windowSeconds) * time.Second
	if w < 5*time.Second {
		return w
	}
	return 5 * time.Second
}

// applyFileOverlay merges YAML values under path into cfg wherever the
// corresponding flag was not explicitly set on the command line.
func applyFileOverlay(cfg *Config, path string, fs *pflag.FlagSet) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return err
	}

	set := func(key string, apply func()) {
		if !fs.Changed(key) && k.Exists(strings.ReplaceAll(key, "-", "_")) {
			apply()
		}
	}

	set("interface", func() { cfg.Interface = k.String("interface") })
	set("file", func() { cfg.File = k.String("file") })
	set("alert-url", func() { cfg.AlertURL = k.String("alert_url") })
	set("dry-run", func() { cfg.DryRun = k.Bool("dry_run") })
	set("aggregate-by-ip", func() { cfg.AggregateByIP = k.Bool("aggregate_by_ip") })
	set("log-create-buckets", func() { cfg.LogCreateBuckets = k.Bool("log_create_buckets") })
	set("metrics-addr", func() { cfg.MetricsAddr = k.String("metrics_addr") })
	set("monitor-queue-size", func() { cfg.MonitorQueueSize = k.Int("monitor_queue_size") })
	set("alert-queue-size", func() { cfg.AlertQueueSize = k.Int("alert_queue_size") })
	set("threshold", func() { cfg.Threshold = uint16(k.Int64("threshold")) })
	set("window", func() { cfg.WindowSeconds = k.Int("window") })
	set("block-seconds", func() { cfg.BlockSeconds = uint32(k.Int64("block_seconds")) })
	if !fs.Changed("whitelist-networks") && k.Exists("whitelist_networks") {
		cfg.WhitelistNetworks = k.Strings("whitelist_networks")
	}
	if !fs.Changed("whitelist-ja3s") && k.Exists("whitelist_ja3s") {
		cfg.WhitelistJA3s = k.Strings("whitelist_ja3s")
	}
	return nil
}

// validate enforces the startup invariants the rest of the system relies
// on: exactly one capture source, and a positive window (GC cadence and
// dedup policy are both measured in multiples of it).
func validate(cfg Config) error {
	if cfg.Interface == "" && cfg.File == "" {
		return fmt.Errorf("exactly one of --interface or --file is required")
	}
	if cfg.Interface != "" && cfg.File != "" {
		return fmt.Errorf("--interface and --file are mutually exclusive")
	}
	if cfg.WindowSeconds <= 0 {
		return fmt.Errorf("--window must be positive, got %d", cfg.WindowSeconds)
	}
	return nil
}

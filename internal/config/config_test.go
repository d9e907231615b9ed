package config

import "testing"

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--interface", "eth0"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Threshold != 1000 || cfg.WindowSeconds != 60 || cfg.BlockSeconds != 86400 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AlertURL != "http://localhost:8080/api/block/update" {
		t.Fatalf("unexpected default alert url: %q", cfg.AlertURL)
	}
	if len(cfg.WhitelistNetworks) != 2 {
		t.Fatalf("unexpected default whitelist: %v", cfg.WhitelistNetworks)
	}
	if cfg.PostTimeout.Seconds() != 5 {
		t.Fatalf("want 5s post-timeout default for window=60, got %v", cfg.PostTimeout)
	}
}

func TestParsePostTimeoutClampsToWindow(t *testing.T) {
	cfg, err := Parse([]string{"--file", "x.pcap", "--window", "3"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.PostTimeout.Seconds() != 3 {
		t.Fatalf("want post-timeout clamped to window=3s, got %v", cfg.PostTimeout)
	}
}

func TestParseRejectsNeitherInterfaceNorFile(t *testing.T) {
	if _, err := Parse([]string{}); err == nil {
		t.Fatalf("want error when neither --interface nor --file is set")
	}
}

func TestParseRejectsBothInterfaceAndFile(t *testing.T) {
	if _, err := Parse([]string{"--interface", "eth0", "--file", "x.pcap"}); err == nil {
		t.Fatalf("want error when both --interface and --file are set")
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]string{
		"--file", "x.pcap",
		"--threshold", "50",
		"--window", "10",
		"--dry-run",
		"--aggregate-by-ip",
		"--whitelist-networks", "172.16.0.0/12",
		"--whitelist-ja3s", "aaaa,bbbb",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Threshold != 50 || cfg.WindowSeconds != 10 || !cfg.DryRun || !cfg.AggregateByIP {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if len(cfg.WhitelistJA3s) != 2 || cfg.WhitelistJA3s[0] != "aaaa" {
		t.Fatalf("unexpected whitelist ja3s: %v", cfg.WhitelistJA3s)
	}
}

func TestParseExplicitPostTimeoutWins(t *testing.T) {
	cfg, err := Parse([]string{"--file", "x.pcap", "--window", "60", "--post-timeout", "2s"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.PostTimeout.Seconds() != 2 {
		t.Fatalf("want explicit post-timeout 2s, got %v", cfg.PostTimeout)
	}
}

func TestParseRejectsNonPositiveWindow(t *testing.T) {
	if _, err := Parse([]string{"--file", "x.pcap", "--window", "0"}); err == nil {
		t.Fatalf("want error for zero window")
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "9080" || cfg.DBPath != "sitemedic.db" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.ScanWorkers != 2 || cfg.SessionTTL != 15*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.MaxReadBytes != 5*1024*1024 {
		t.Fatalf("max read bytes = %d", cfg.MaxReadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8000")
	t.Setenv("SCAN_WORKERS", "8")
	t.Setenv("SESSION_TTL_MIN", "5")
	t.Setenv("SCAN_POLL_SEC", "not-a-number")

	cfg := Load()
	if cfg.Port != "8000" || cfg.ScanWorkers != 8 {
		t.Fatalf("overrides: %+v", cfg)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Fatalf("ttl = %s", cfg.SessionTTL)
	}
	// Unparseable values fall back to the default.
	if cfg.ScanPollSec != 3 {
		t.Fatalf("poll = %d", cfg.ScanPollSec)
	}
}

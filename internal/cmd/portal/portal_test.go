package portal

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("portal", flag.ContinueOnError)
	t.Setenv("BUDGET_PORTAL_PORT", "9090")
	t.Setenv("BUDGET_PORTAL_SESSION_SECRET", "env-secret")

	cfg, err := ParseConfig(fs, []string{"-db-path", "tmp/portal.db", "-publish-max-attempts", "3"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Port)
	}
	if cfg.SessionSecret != "env-secret" {
		t.Fatalf("session secret = %q, want %q", cfg.SessionSecret, "env-secret")
	}
	if cfg.DBPath != "tmp/portal.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "tmp/portal.db")
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("portal", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.DBPath != "data/portal.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/portal.db")
	}
	if cfg.SessionTTL != 8*time.Hour {
		t.Fatalf("session ttl = %v, want 8h", cfg.SessionTTL)
	}
	if cfg.HydrateOnMiss {
		t.Fatal("hydrate on miss must default to off")
	}
	if cfg.PublishWorkers != 2 || cfg.PublishQueueSize != 64 {
		t.Fatalf("publish pool = %d/%d, want 2/64", cfg.PublishWorkers, cfg.PublishQueueSize)
	}
}

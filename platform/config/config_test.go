package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/funnel")
	t.Setenv("PIPELINE_MODE", "inline")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetHandoffCooldown() != 30*time.Minute {
		t.Fatalf("expected 30m handoff cooldown, got %s", cfg.GetHandoffCooldown())
	}
	if cfg.GetCRMBaseURL() != "https://services.leadconnectorhq.com" {
		t.Fatalf("unexpected CRM base url %q", cfg.GetCRMBaseURL())
	}
	if cfg.GetFastReplyWindow() != 5*time.Minute {
		t.Fatalf("expected 5m fast reply window, got %s", cfg.GetFastReplyWindow())
	}
}

func TestLoadRequiresRedisForQueueMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/funnel")
	t.Setenv("PIPELINE_MODE", "queue")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when queue mode has no redis url")
	}
}

func TestLoadRejectsUnknownPipelineMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/funnel")
	t.Setenv("PIPELINE_MODE", "parallel")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown pipeline mode")
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split result %v", got)
	}
}

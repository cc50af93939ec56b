package research

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigNormalizeDefaults(t *testing.T) {
	cfg := new(Config)
	cfg.Normalize()
	if cfg.MaxIterations != 4 {
		t.Errorf("expected 4 iterations, got %d", cfg.MaxIterations)
	}
	if cfg.MaxQueriesPerIteration != 3 {
		t.Errorf("expected 3 queries per iteration, got %d", cfg.MaxQueriesPerIteration)
	}
	if cfg.MaxResultsPerQuery != 10 {
		t.Errorf("expected 10 results per query, got %d", cfg.MaxResultsPerQuery)
	}
	if cfg.PerCallTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.PerCallTimeout)
	}
	if cfg.MinSearchInterval != time.Second {
		t.Errorf("expected 1s search interval, got %v", cfg.MinSearchInterval)
	}
}

func TestConfigNormalizeClampsQueries(t *testing.T) {
	cfg := &Config{MaxQueriesPerIteration: 99}
	cfg.Normalize()
	if cfg.MaxQueriesPerIteration != maxPlannedQueries {
		t.Errorf("expected clamp to %d, got %d", maxPlannedQueries, cfg.MaxQueriesPerIteration)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	raw := []byte("max_iterations: 2\nmodel: gpt-4o-mini\nper_call_timeout: 10s\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxIterations != 2 || cfg.Model != "gpt-4o-mini" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.PerCallTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.PerCallTimeout)
	}
	// defaults fill unset fields
	if cfg.MaxResultsPerQuery != 10 {
		t.Errorf("expected default results per query, got %d", cfg.MaxResultsPerQuery)
	}
}

func TestCapText(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one is last."
	capped := capText(text, 45)
	if capped != "First sentence here. Second sentence follows." {
		t.Errorf("expected cut at sentence boundary, got %q", capped)
	}
	if got := capText("short", 100); got != "short" {
		t.Errorf("text under the cap must be untouched, got %q", got)
	}
	long := "one single sentence that is much longer than the cap allows"
	if got := capText(long, 10); len(got) > 10 {
		t.Errorf("oversized single sentence should be hard cut, got %q", got)
	}
}

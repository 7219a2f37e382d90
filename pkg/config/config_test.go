package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Adjust.PenaltyRate != 0.05 || cfg.Adjust.BoostRate != 0.05 {
		t.Errorf("rates = %v/%v, want 0.05/0.05", cfg.Adjust.PenaltyRate, cfg.Adjust.BoostRate)
	}
	if cfg.Adjust.KeywordTopN != 3 {
		t.Errorf("keywordTopN = %d, want 3", cfg.Adjust.KeywordTopN)
	}
	if cfg.Feedback.Path != "data/feedback.csv" {
		t.Errorf("feedback path = %q", cfg.Feedback.Path)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := []byte(`
adjust:
  penaltyRate: 0.1
  matcher: trigram
index:
  path: /tmp/x.vidx
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RR_ADJUST_BOOST_RATE", "0.2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Adjust.PenaltyRate != 0.1 {
		t.Errorf("penaltyRate = %v, want 0.1", cfg.Adjust.PenaltyRate)
	}
	if cfg.Adjust.BoostRate != 0.2 {
		t.Errorf("boostRate = %v, want 0.2", cfg.Adjust.BoostRate)
	}
	if cfg.Adjust.Matcher != MatcherTrigram {
		t.Errorf("matcher = %q", cfg.Adjust.Matcher)
	}
	if cfg.Index.Path != "/tmp/x.vidx" {
		t.Errorf("index path = %q", cfg.Index.Path)
	}
	// untouched keys keep their defaults
	if cfg.Adjust.KeywordTopN != 3 {
		t.Errorf("keywordTopN = %d, want 3", cfg.Adjust.KeywordTopN)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"penalty at one", func(c *Config) { c.Adjust.PenaltyRate = 1 }},
		{"negative boost", func(c *Config) { c.Adjust.BoostRate = -0.1 }},
		{"zero top n", func(c *Config) { c.Adjust.KeywordTopN = 0 }},
		{"unknown matcher", func(c *Config) { c.Adjust.Matcher = "regex" }},
		{"unknown backend", func(c *Config) { c.Feedback.Backend = "sqlite" }},
		{"http keywords without url", func(c *Config) { c.Keywords.Provider = KeywordsHTTP }},
		{"empty index path", func(c *Config) { c.Index.Path = "" }},
		{"default above max", func(c *Config) { c.Recommend.DefaultTopN = 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

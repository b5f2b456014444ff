package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9100
storage:
  vocabulary_path: "./data/vocabulary.json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9100 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	wantVocab := filepath.Join(dir, "data", "vocabulary.json")
	if cfg.Storage.VocabularyPath != wantVocab {
		t.Errorf("vocabulary_path = %q, want %q", cfg.Storage.VocabularyPath, wantVocab)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Vocabulary.Capacity != 50 {
		t.Errorf("Capacity = %d, want default 50", cfg.Vocabulary.Capacity)
	}
	if len(cfg.Vocabulary.BaseTerms) == 0 {
		t.Error("base terms should have defaults")
	}
	if cfg.Detection.SafetyThreshold != 0.5 {
		t.Errorf("SafetyThreshold = %v, want default 0.5", cfg.Detection.SafetyThreshold)
	}
	if got := cfg.Detection.DistanceTiersMeters; len(got) != 3 || got[0] != 0.5 {
		t.Errorf("DistanceTiersMeters = %v, want [0.5 1.0 1.5]", got)
	}
	if cfg.Confidence.Floor != 0.25 {
		t.Errorf("Floor = %v, want default 0.25", cfg.Confidence.Floor)
	}
	if cfg.Confidence.AdaptiveLow != 0.7 || cfg.Confidence.AdaptiveHigh != 0.9 {
		t.Errorf("adaptive band = (%v, %v), want (0.7, 0.9)", cfg.Confidence.AdaptiveLow, cfg.Confidence.AdaptiveHigh)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

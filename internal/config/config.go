// Package config provides configuration loading and structs for the Mitsuke detection core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Detection  DetectionConfig  `yaml:"detection"`
	Confidence ConfidenceConfig `yaml:"confidence"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the persisted vocabulary and the visual prompt store.
type StorageConfig struct {
	VocabularyPath  string `yaml:"vocabulary_path"`
	PromptStorePath string `yaml:"prompt_store_path"`
	MemoryIndexPath string `yaml:"memory_index_path"`
	NameIndexPath   string `yaml:"name_index_path"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	TextModelPath  string `yaml:"text_model_path"`
	ImageModelPath string `yaml:"image_model_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
}

// VocabularyConfig holds adaptive vocabulary settings.
type VocabularyConfig struct {
	Capacity             int      `yaml:"capacity"`
	BaseTerms            []string `yaml:"base_terms"`
	PruneIntervalSeconds int      `yaml:"prune_interval_seconds"`
	MaxAgeHours          int      `yaml:"max_age_hours"`
	MinUseCount          int      `yaml:"min_use_count"`
}

// DetectionConfig holds detector and safety alert settings.
type DetectionConfig struct {
	SafetyModelPath  string `yaml:"safety_model_path"`
	ContextModelPath string `yaml:"context_model_path"`
	// SafetyThreshold is the minimum confidence for safety detections (0.5-0.6).
	SafetyThreshold float64 `yaml:"safety_threshold"`
	// SafetyVocabulary is the fixed safety label set.
	SafetyVocabulary []string `yaml:"safety_vocabulary"`
	// HazardClasses are the safety labels that can trigger distance alerts.
	HazardClasses []string `yaml:"hazard_classes"`
	// DistanceTiersMeters are alert tier boundaries, nearest first.
	DistanceTiersMeters []float64 `yaml:"distance_tiers_meters"`
	SafetyBudgetMs      int       `yaml:"safety_budget_ms"`
	ContextBudgetMs     int       `yaml:"context_budget_ms"`
	RecallBudgetMs      int       `yaml:"recall_budget_ms"`
	SwitchBudgetMs      int       `yaml:"switch_budget_ms"`
}

// ConfidenceConfig holds the validator's floor and per-mode soft bands.
type ConfidenceConfig struct {
	Floor         float64 `yaml:"floor"`
	DiscoveryLow  float64 `yaml:"discovery_low"`
	DiscoveryHigh float64 `yaml:"discovery_high"`
	AdaptiveLow   float64 `yaml:"adaptive_low"`
	AdaptiveHigh  float64 `yaml:"adaptive_high"`
	RecallLow     float64 `yaml:"recall_low"`
	RecallHigh    float64 `yaml:"recall_high"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.VocabularyPath = expandPath(cfg.Storage.VocabularyPath, configDir)
	cfg.Storage.PromptStorePath = expandPath(cfg.Storage.PromptStorePath, configDir)
	cfg.Storage.MemoryIndexPath = expandPath(cfg.Storage.MemoryIndexPath, configDir)
	cfg.Storage.NameIndexPath = expandPath(cfg.Storage.NameIndexPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Detection.SafetyModelPath = expandPath(cfg.Detection.SafetyModelPath, configDir)
	cfg.Detection.ContextModelPath = expandPath(cfg.Detection.ContextModelPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.VocabularyPath == "" {
		cfg.Storage.VocabularyPath = "/usr/local/var/mitsuke/data/vocabulary.json"
	}
	if cfg.Storage.PromptStorePath == "" {
		cfg.Storage.PromptStorePath = "/usr/local/var/mitsuke/data/memories"
	}
	if cfg.Storage.MemoryIndexPath == "" {
		cfg.Storage.MemoryIndexPath = "/usr/local/var/mitsuke/data/db/memories.db"
	}
	if cfg.Storage.NameIndexPath == "" {
		cfg.Storage.NameIndexPath = "/usr/local/var/mitsuke/data/indices/names"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/mitsuke/data/models/clip-text-vit-b32.onnx"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "/usr/local/var/mitsuke/data/models/clip-image-vit-b32.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Vocabulary.Capacity == 0 {
		cfg.Vocabulary.Capacity = 50
	}
	if cfg.Vocabulary.BaseTerms == nil {
		cfg.Vocabulary.BaseTerms = []string{
			"person", "car", "bicycle", "chair", "table", "door", "stairs",
		}
	}
	if cfg.Vocabulary.PruneIntervalSeconds == 0 {
		cfg.Vocabulary.PruneIntervalSeconds = 300
	}
	if cfg.Vocabulary.MaxAgeHours == 0 {
		cfg.Vocabulary.MaxAgeHours = 24
	}
	if cfg.Vocabulary.MinUseCount == 0 {
		cfg.Vocabulary.MinUseCount = 3
	}
	if cfg.Detection.SafetyThreshold == 0 {
		cfg.Detection.SafetyThreshold = 0.5
	}
	if cfg.Detection.SafetyVocabulary == nil {
		cfg.Detection.SafetyVocabulary = []string{
			"person", "car", "bicycle", "motorcycle", "bus", "truck",
			"stairs", "pole", "fire hydrant",
		}
	}
	if cfg.Detection.HazardClasses == nil {
		cfg.Detection.HazardClasses = []string{
			"person", "car", "bicycle", "motorcycle", "bus", "truck", "stairs", "pole",
		}
	}
	if cfg.Detection.DistanceTiersMeters == nil {
		cfg.Detection.DistanceTiersMeters = []float64{0.5, 1.0, 1.5}
	}
	if cfg.Detection.SafetyBudgetMs == 0 {
		cfg.Detection.SafetyBudgetMs = 100
	}
	if cfg.Detection.ContextBudgetMs == 0 {
		cfg.Detection.ContextBudgetMs = 150
	}
	if cfg.Detection.RecallBudgetMs == 0 {
		cfg.Detection.RecallBudgetMs = 200
	}
	if cfg.Detection.SwitchBudgetMs == 0 {
		cfg.Detection.SwitchBudgetMs = 50
	}
	if cfg.Confidence.Floor == 0 {
		cfg.Confidence.Floor = 0.25
	}
	if cfg.Confidence.DiscoveryLow == 0 {
		cfg.Confidence.DiscoveryLow = 0.3
	}
	if cfg.Confidence.DiscoveryHigh == 0 {
		cfg.Confidence.DiscoveryHigh = 0.6
	}
	if cfg.Confidence.AdaptiveLow == 0 {
		cfg.Confidence.AdaptiveLow = 0.7
	}
	if cfg.Confidence.AdaptiveHigh == 0 {
		cfg.Confidence.AdaptiveHigh = 0.9
	}
	if cfg.Confidence.RecallLow == 0 {
		cfg.Confidence.RecallLow = 0.6
	}
	if cfg.Confidence.RecallHigh == 0 {
		cfg.Confidence.RecallHigh = 0.95
	}
}

package validate

import (
	"math/rand"
	"testing"

	"github.com/aisight/mitsuke/internal/config"
	"github.com/aisight/mitsuke/internal/models"
)

func testConfig() *config.ConfidenceConfig {
	return &config.ConfidenceConfig{
		Floor:         0.25,
		DiscoveryLow:  0.3,
		DiscoveryHigh: 0.6,
		AdaptiveLow:   0.7,
		AdaptiveHigh:  0.9,
		RecallLow:     0.6,
		RecallHigh:    0.95,
	}
}

func det(conf float64) models.Detection {
	return models.Detection{Label: "cup", Confidence: conf}
}

func TestValidateDropsBelowFloor(t *testing.T) {
	v := NewValidator(testConfig())

	out := v.Validate([]models.Detection{det(0.1), det(0.24), det(0.25), det(0.8)}, models.ModeAdaptive)
	if len(out) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(out))
	}
	for _, d := range out {
		if d.Confidence < 0.25 {
			t.Errorf("detection with confidence %f survived the floor", d.Confidence)
		}
	}
}

func TestValidateTagsBelowBand(t *testing.T) {
	v := NewValidator(testConfig())

	// 0.5 is above the floor but below the adaptive band's 0.7 lower bound.
	out := v.Validate([]models.Detection{det(0.5), det(0.75)}, models.ModeAdaptive)
	if len(out) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(out))
	}
	if !out[0].LowConfidence {
		t.Error("expected 0.5 detection to be tagged low confidence in adaptive mode")
	}
	if out[1].LowConfidence {
		t.Error("expected 0.75 detection not to be tagged in adaptive mode")
	}
}

func TestValidateBandsPerMode(t *testing.T) {
	v := NewValidator(testConfig())

	// 0.5 sits inside the discovery band but below the recall band.
	if out := v.Validate([]models.Detection{det(0.5)}, models.ModeDiscovery); out[0].LowConfidence {
		t.Error("0.5 should not be low confidence in discovery mode")
	}
	if out := v.Validate([]models.Detection{det(0.5)}, models.ModeRecall); !out[0].LowConfidence {
		t.Error("0.5 should be low confidence in recall mode")
	}
}

func TestValidateNeverEmitsBelowFloor(t *testing.T) {
	v := NewValidator(testConfig())
	rng := rand.New(rand.NewSource(42))

	modes := []models.DetectorMode{models.ModeDiscovery, models.ModeAdaptive, models.ModeRecall}
	for i := 0; i < 1000; i++ {
		in := make([]models.Detection, rng.Intn(8))
		for j := range in {
			in[j] = det(rng.Float64())
		}
		out := v.Validate(in, modes[rng.Intn(len(modes))])
		for _, d := range out {
			if d.Confidence < v.Floor() {
				t.Fatalf("emitted detection below floor: %f", d.Confidence)
			}
		}
	}
}

// Package validate post-filters contextual detections: a hard confidence floor
// below which detections are dropped, and per-mode soft bands below which they
// are tagged low-confidence but still reported.
package validate

import (
	"github.com/aisight/mitsuke/internal/config"
	"github.com/aisight/mitsuke/internal/models"
)

// Band is a soft confidence range for one mode.
type Band struct {
	Low  float64
	High float64
}

// Validator applies the floor and the active mode's band.
type Validator struct {
	floor float64
	bands map[models.DetectorMode]Band
}

// NewValidator creates a validator from the confidence configuration.
func NewValidator(cfg *config.ConfidenceConfig) *Validator {
	return &Validator{
		floor: cfg.Floor,
		bands: map[models.DetectorMode]Band{
			models.ModeDiscovery: {Low: cfg.DiscoveryLow, High: cfg.DiscoveryHigh},
			models.ModeAdaptive:  {Low: cfg.AdaptiveLow, High: cfg.AdaptiveHigh},
			models.ModeRecall:    {Low: cfg.RecallLow, High: cfg.RecallHigh},
		},
	}
}

// Validate filters and tags detections for the given mode. Detections below
// the floor are dropped; detections at or above the floor but below the band's
// lower bound are kept with LowConfidence set. Nothing above the floor is
// silently dropped.
func (v *Validator) Validate(detections []models.Detection, mode models.DetectorMode) []models.Detection {
	band := v.bands[mode]
	out := make([]models.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < v.floor {
			continue
		}
		d.LowConfidence = d.Confidence < band.Low
		out = append(out, d)
	}
	return out
}

// Floor returns the hard confidence floor.
func (v *Validator) Floor() float64 {
	return v.floor
}

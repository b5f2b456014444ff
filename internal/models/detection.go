package models

// DetectorMode identifies which embedding source the contextual detector runs with.
type DetectorMode string

const (
	// ModeDiscovery uses the static built-in vocabulary.
	ModeDiscovery DetectorMode = "discovery"
	// ModeAdaptive uses the learned adaptive vocabulary.
	ModeAdaptive DetectorMode = "adaptive"
	// ModeRecall uses a single stored visual prompt.
	ModeRecall DetectorMode = "recall"
)

// Valid reports whether m is one of the three known modes.
func (m DetectorMode) Valid() bool {
	switch m {
	case ModeDiscovery, ModeAdaptive, ModeRecall:
		return true
	}
	return false
}

// Detection is one contextual detector hit after validation.
type Detection struct {
	Label       string       `json:"label"`
	BoundingBox BoundingBox  `json:"bounding_box"`
	Confidence  float64      `json:"confidence"`
	ModeUsed    DetectorMode `json:"mode_used"`
	// LowConfidence marks detections above the hard floor but below the
	// active mode's soft band. They are reported, never silently dropped.
	LowConfidence bool `json:"low_confidence"`
}

// SafetyDetection is one safety detector hit. Labels come from the fixed
// safety vocabulary only.
type SafetyDetection struct {
	Label             string      `json:"label"`
	BoundingBox       BoundingBox `json:"bounding_box"`
	Confidence        float64     `json:"confidence"`
	EstimatedDistance float64     `json:"estimated_distance_m"`
}

// SafetyAlert is a proximity alert for a hazard detection. Tier 0 is the
// nearest distance boundary.
type SafetyAlert struct {
	Seq               uint64  `json:"seq"`
	Label             string  `json:"label"`
	Tier              int     `json:"tier"`
	EstimatedDistance float64 `json:"estimated_distance_m"`
}

// FrameResult is the joined output of one ProcessFrame call.
type FrameResult struct {
	Seq              uint64            `json:"seq"`
	Mode             DetectorMode      `json:"mode"`
	SafetyDetections []SafetyDetection `json:"safety_detections"`
	Detections       []Detection       `json:"detections"`
	SafetyTimeMs     int64             `json:"safety_time_ms"`
	ContextTimeMs    int64             `json:"context_time_ms"`
}

// Package detect defines the two detector roles the pipeline runs per frame
// and their implementations: a fixed-vocabulary safety detector and a
// mode-aware contextual detector driven by a committed embedding context.
package detect

import (
	"context"

	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
)

// SafetyDetector finds hazard-relevant objects from a fixed vocabulary and
// estimates their distance. Implementations must treat the frame as read-only.
type SafetyDetector interface {
	Detect(ctx context.Context, frame *models.Frame) ([]models.SafetyDetection, error)
	Close() error
}

// ContextDetector finds objects using whatever embedding context is committed.
// Implementations must treat the frame as read-only.
type ContextDetector interface {
	Detect(ctx context.Context, frame *models.Frame, ec *mode.EmbeddingContext) ([]models.Detection, error)
	Close() error
}

// Proposer yields candidate object regions for a frame. Region proposal is the
// detection model's concern; the similarity detector only labels proposals.
type Proposer interface {
	Propose(ctx context.Context, frame *models.Frame) ([]models.BoundingBox, error)
}

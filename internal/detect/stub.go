package detect

import (
	"context"

	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
)

// StubSafetyDetector returns scripted results, for tests.
type StubSafetyDetector struct {
	Results []models.SafetyDetection
	Err     error
	// Delay, when set, is waited out (or cut short by ctx) before returning.
	Delay func(ctx context.Context)
	Calls int
}

// Detect returns the scripted results or error.
func (s *StubSafetyDetector) Detect(ctx context.Context, frame *models.Frame) ([]models.SafetyDetection, error) {
	s.Calls++
	if s.Delay != nil {
		s.Delay(ctx)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Results, nil
}

// Close is a no-op.
func (s *StubSafetyDetector) Close() error { return nil }

// StubContextDetector returns scripted results, for tests. The mode of each
// result is stamped from the context it was called with.
type StubContextDetector struct {
	Results []models.Detection
	Err     error
	Delay   func(ctx context.Context)
	Calls   int
	// LastContext records the embedding context of the most recent call.
	LastContext *mode.EmbeddingContext
}

// Detect returns the scripted results or error.
func (s *StubContextDetector) Detect(ctx context.Context, frame *models.Frame, ec *mode.EmbeddingContext) ([]models.Detection, error) {
	s.Calls++
	s.LastContext = ec
	if s.Delay != nil {
		s.Delay(ctx)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]models.Detection, len(s.Results))
	for i, d := range s.Results {
		d.ModeUsed = ec.Mode
		out[i] = d
	}
	return out, nil
}

// Close is a no-op.
func (s *StubContextDetector) Close() error { return nil }

// StubProposer proposes a fixed set of boxes, for tests.
type StubProposer struct {
	Boxes []models.BoundingBox
}

// Propose returns the fixed boxes.
func (s *StubProposer) Propose(ctx context.Context, frame *models.Frame) ([]models.BoundingBox, error) {
	return s.Boxes, nil
}

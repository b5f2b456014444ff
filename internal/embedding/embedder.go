// Package embedding provides text and visual region embedding via ONNX and caching.
package embedding

import (
	"context"

	"github.com/aisight/mitsuke/internal/models"
)

// Embedder produces vector embeddings for vocabulary terms and frame regions.
// Text and region embeddings live in the same space so a region can be matched
// against term embeddings by cosine similarity.
type Embedder interface {
	// EmbedText returns the embedding for a vocabulary term.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedTextBatch returns embeddings for each term, in order.
	EmbedTextBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedRegion returns the embedding for the given region of a frame.
	EmbedRegion(ctx context.Context, frame *models.Frame, box models.BoundingBox) ([]float32, error)
	Dimensions() int
	Close() error
}

// Cosine returns the cosine similarity of two vectors. Assumes both are
// L2-normalized, so the dot product is the similarity. Returns 0 for
// mismatched lengths.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

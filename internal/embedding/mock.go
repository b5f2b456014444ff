package embedding

import (
	"context"
	"math"

	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. Text embeddings derive
// from the text hash; region embeddings derive from the region's pixel bytes,
// so the same region of the same frame always embeds identically.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic unit vector based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromSeed(HashString(text)), nil
}

// EmbedTextBatch calls EmbedText for each text.
func (e *MockEmbedder) EmbedTextBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// EmbedRegion returns a deterministic unit vector based on the region's pixels.
func (e *MockEmbedder) EmbedRegion(ctx context.Context, frame *models.Frame, box models.BoundingBox) ([]float32, error) {
	box = box.Clamp(frame.Width, frame.Height)
	seed := 17
	stride := frame.Width * 3
	for y := box.Y; y < box.Y+box.Height; y++ {
		rowStart := y*stride + box.X*3
		rowEnd := rowStart + box.Width*3
		if rowStart < 0 || rowEnd > len(frame.Data) {
			continue
		}
		for _, px := range frame.Data[rowStart:rowEnd] {
			seed = 31*seed + int(px)
		}
	}
	if seed < 0 {
		seed = -seed
	}
	return e.fromSeed(seed), nil
}

func (e *MockEmbedder) fromSeed(seed int) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

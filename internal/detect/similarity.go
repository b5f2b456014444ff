package detect

import (
	"context"
	"fmt"
	"sync"

	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
)

// SimilarityDetector labels proposed regions by cosine similarity between the
// region embedding and the active context's term embeddings. In Discovery mode
// it matches against the built-in discovery vocabulary; in Adaptive and Recall
// modes it matches against the context's vectors.
type SimilarityDetector struct {
	embedder embedding.Embedder
	proposer Proposer

	discoveryTerms []string

	mu               sync.Mutex
	discoveryVectors [][]float32
}

// NewSimilarityDetector creates a detector matching proposals from proposer.
// discoveryTerms is the built-in vocabulary used when no learned context is
// active; its embeddings are computed lazily on first Discovery-mode use.
func NewSimilarityDetector(embedder embedding.Embedder, proposer Proposer, discoveryTerms []string) *SimilarityDetector {
	return &SimilarityDetector{
		embedder:       embedder,
		proposer:       proposer,
		discoveryTerms: discoveryTerms,
	}
}

// Detect embeds each proposed region and assigns the best-matching label from
// the active vocabulary. Cosine similarity maps directly to confidence.
func (d *SimilarityDetector) Detect(ctx context.Context, frame *models.Frame, ec *mode.EmbeddingContext) ([]models.Detection, error) {
	terms, vectors, err := d.vocabulary(ctx, ec)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, nil
	}

	boxes, err := d.proposer.Propose(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("region proposal failed: %w", err)
	}

	var out []models.Detection
	for _, box := range boxes {
		regionVec, err := d.embedder.EmbedRegion(ctx, frame, box)
		if err != nil {
			return nil, fmt.Errorf("failed to embed region: %w", err)
		}
		bestIdx := -1
		bestScore := -1.0
		for i, termVec := range vectors {
			if score := embedding.Cosine(regionVec, termVec); score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}
		if bestScore < 0 {
			bestScore = 0
		}
		out = append(out, models.Detection{
			Label:       terms[bestIdx],
			BoundingBox: box,
			Confidence:  bestScore,
			ModeUsed:    ec.Mode,
		})
	}
	return out, nil
}

func (d *SimilarityDetector) vocabulary(ctx context.Context, ec *mode.EmbeddingContext) ([]string, [][]float32, error) {
	if ec.Mode != models.ModeDiscovery {
		return ec.Terms, ec.Vectors, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.discoveryVectors == nil {
		vectors, err := d.embedder.EmbedTextBatch(ctx, d.discoveryTerms)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to embed discovery vocabulary: %w", err)
		}
		d.discoveryVectors = vectors
	}
	return d.discoveryTerms, d.discoveryVectors, nil
}

// Close is a no-op; the embedder is owned by the caller.
func (d *SimilarityDetector) Close() error {
	return nil
}

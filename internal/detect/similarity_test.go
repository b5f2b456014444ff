package detect

import (
	"bytes"
	"context"
	"testing"

	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
)

func testFrame(w, h int, fill byte) *models.Frame {
	return &models.Frame{Seq: 1, Width: w, Height: h, Data: bytes.Repeat([]byte{fill}, w*h*3)}
}

func TestSimilarityDetector_RecallMatchesSavedRegion(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	ctx := context.Background()
	frame := testFrame(64, 48, 21)
	box := models.BoundingBox{X: 10, Y: 10, Width: 40, Height: 30}

	// Recall context built from the exact region embedding.
	saved, err := emb.EmbedRegion(ctx, frame, box)
	if err != nil {
		t.Fatal(err)
	}
	ec := &mode.EmbeddingContext{
		Mode:     models.ModeRecall,
		Terms:    []string{"wallet"},
		Vectors:  [][]float32{saved},
		MemoryID: "m1",
	}

	d := NewSimilarityDetector(emb, &StubProposer{Boxes: []models.BoundingBox{box}}, nil)
	dets, err := d.Detect(ctx, frame, ec)
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	if dets[0].Label != "wallet" || dets[0].ModeUsed != models.ModeRecall {
		t.Errorf("detection = %+v", dets[0])
	}
	if dets[0].Confidence < 0.6 {
		t.Errorf("confidence = %v, want >= 0.6 for the matching region", dets[0].Confidence)
	}
}

func TestSimilarityDetector_DiscoveryUsesBuiltinVocabulary(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	ctx := context.Background()
	frame := testFrame(64, 48, 3)
	box := models.BoundingBox{X: 0, Y: 0, Width: 32, Height: 32}

	d := NewSimilarityDetector(emb, &StubProposer{Boxes: []models.BoundingBox{box}}, []string{"person", "car"})
	dets, err := d.Detect(ctx, frame, &mode.EmbeddingContext{Mode: models.ModeDiscovery})
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	if dets[0].Label != "person" && dets[0].Label != "car" {
		t.Errorf("label = %q, want a built-in vocabulary term", dets[0].Label)
	}
	if dets[0].ModeUsed != models.ModeDiscovery {
		t.Errorf("mode = %s, want discovery", dets[0].ModeUsed)
	}
}

func TestSimilarityDetector_EmptyVocabulary(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	d := NewSimilarityDetector(emb, &StubProposer{Boxes: []models.BoundingBox{{Width: 8, Height: 8}}}, nil)
	dets, err := d.Detect(context.Background(), testFrame(16, 16, 1), &mode.EmbeddingContext{Mode: models.ModeDiscovery})
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 0 {
		t.Errorf("got %d detections with empty vocabulary, want 0", len(dets))
	}
}

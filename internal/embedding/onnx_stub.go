//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/aisight/mitsuke/internal/models"
)

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_, _ string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

var errONNXUnavailable = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// EmbedText is unreachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return nil, errONNXUnavailable
}

// EmbedTextBatch is unreachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) EmbedTextBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}

// EmbedRegion is unreachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) EmbedRegion(_ context.Context, _ *models.Frame, _ models.BoundingBox) ([]float32, error) {
	return nil, errONNXUnavailable
}

// Dimensions is unreachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) Dimensions() int { return 0 }

// Close is unreachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) Close() error { return nil }

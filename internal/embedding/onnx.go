//go:build cgo
// +build cgo

// Package embedding provides ONNX-based embedding (requires CGO and onnxruntime library).
package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/pkg/utils"
)

const imageInputSize = 224

// ONNXEmbedder embeds terms and frame regions with a pair of ONNX sessions
// (CLIP-style text and image encoders sharing one output space). It requires
// CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	textSession  *ort.AdvancedSession
	imageSession *ort.AdvancedSession
	dimensions   int
	maxTokens    int
	cache        *TermCache
	tokenizer    Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutputTensor    *ort.Tensor[float32]
	pixelTensor         *ort.Tensor[float32]
	imageOutputTensor   *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder from a text encoder and an image
// encoder model. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(textModelPath, imageModelPath string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 77
	}

	tokenizer := &SimpleTokenizer{}
	inputIDs, attentionMask, _ := tokenizer.Tokenize("", maxTokens)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	textOutputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create text output tensor: %w", err)
	}
	pixelData := make([]float32, 3*imageInputSize*imageInputSize)
	pixelTensor, err := ort.NewTensor(ort.NewShape(1, 3, imageInputSize, imageInputSize), pixelData)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		textOutputTensor.Destroy()
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	imageOutputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		textOutputTensor.Destroy()
		pixelTensor.Destroy()
		return nil, fmt.Errorf("failed to create image output tensor: %w", err)
	}

	textSession, err := ort.NewAdvancedSession(
		textModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embedding"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor},
		[]ort.ArbitraryTensor{textOutputTensor},
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		textOutputTensor.Destroy()
		pixelTensor.Destroy()
		imageOutputTensor.Destroy()
		return nil, fmt.Errorf("failed to create text ONNX session: %w", err)
	}
	imageSession, err := ort.NewAdvancedSession(
		imageModelPath,
		[]string{"pixel_values"},
		[]string{"image_embedding"},
		[]ort.ArbitraryTensor{pixelTensor},
		[]ort.ArbitraryTensor{imageOutputTensor},
		nil,
	)
	if err != nil {
		textSession.Destroy()
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		textOutputTensor.Destroy()
		pixelTensor.Destroy()
		imageOutputTensor.Destroy()
		return nil, fmt.Errorf("failed to create image ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		textSession:         textSession,
		imageSession:        imageSession,
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		cache:               NewTermCache(cacheSize),
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		textOutputTensor:    textOutputTensor,
		pixelTensor:         pixelTensor,
		imageOutputTensor:   imageOutputTensor,
	}, nil
}

// EmbedText returns the embedding for a term, using the cache when available.
func (e *ONNXEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, _ := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)

	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.textOutputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	e.cache.Set(text, embedding)
	return embedding, nil
}

// EmbedTextBatch calls EmbedText for each text.
func (e *ONNXEmbedder) EmbedTextBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

// EmbedRegion crops the box from the frame, resizes to the encoder input size,
// and returns the image embedding.
func (e *ONNXEmbedder) EmbedRegion(ctx context.Context, frame *models.Frame, box models.BoundingBox) ([]float32, error) {
	box = box.Clamp(frame.Width, frame.Height)
	if box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("empty region %dx%d", box.Width, box.Height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fillPixelTensor(e.pixelTensor.GetData(), frame, box)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.imageOutputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// fillPixelTensor writes the cropped region into dst as CHW RGB float32 in [0,1],
// nearest-neighbor resized to imageInputSize. Frames are BGR24.
func fillPixelTensor(dst []float32, frame *models.Frame, box models.BoundingBox) {
	stride := frame.Width * 3
	plane := imageInputSize * imageInputSize
	for oy := 0; oy < imageInputSize; oy++ {
		sy := box.Y + oy*box.Height/imageInputSize
		for ox := 0; ox < imageInputSize; ox++ {
			sx := box.X + ox*box.Width/imageInputSize
			off := sy*stride + sx*3
			var b, g, r float32
			if off >= 0 && off+2 < len(frame.Data) {
				b = float32(frame.Data[off]) / 255
				g = float32(frame.Data[off+1]) / 255
				r = float32(frame.Data[off+2]) / 255
			}
			idx := oy*imageInputSize + ox
			dst[idx] = r
			dst[plane+idx] = g
			dst[2*plane+idx] = b
		}
	}
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.textSession != nil {
		err = e.textSession.Destroy()
		e.textSession = nil
	}
	if e.imageSession != nil {
		if derr := e.imageSession.Destroy(); err == nil {
			err = derr
		}
		e.imageSession = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionMaskTensor != nil {
		_ = e.attentionMaskTensor.Destroy()
		e.attentionMaskTensor = nil
	}
	if e.textOutputTensor != nil {
		_ = e.textOutputTensor.Destroy()
		e.textOutputTensor = nil
	}
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOutputTensor != nil {
		_ = e.imageOutputTensor.Destroy()
		e.imageOutputTensor = nil
	}
	return err
}

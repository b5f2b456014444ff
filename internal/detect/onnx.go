//go:build cgo
// +build cgo

package detect

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/aisight/mitsuke/internal/models"
)

const (
	detectorInputSize = 640
	maxDetections     = 100
)

// nominalHeights maps safety classes to typical real-world heights in meters,
// used for monocular distance estimation from box height.
var nominalHeights = map[string]float64{
	"person":       1.7,
	"car":          1.5,
	"bicycle":      1.1,
	"motorcycle":   1.2,
	"bus":          3.0,
	"truck":        3.0,
	"stairs":       1.0,
	"pole":         2.5,
	"fire hydrant": 0.75,
}

// ONNXSafetyDetector runs a YOLO-style ONNX model with NMS baked into the
// export (boxes/scores/classes outputs). Labels index into the fixed safety
// vocabulary. Requires CGO and the onnxruntime shared library.
type ONNXSafetyDetector struct {
	session    *ort.AdvancedSession
	vocabulary []string
	threshold  float64

	pixelTensor  *ort.Tensor[float32]
	boxesTensor  *ort.Tensor[float32]
	scoresTensor *ort.Tensor[float32]
	classTensor  *ort.Tensor[int64]
	mu           sync.Mutex
}

// NewONNXSafetyDetector creates a safety detector from modelPath. vocabulary
// maps model class ids to labels; detections below threshold are dropped.
func NewONNXSafetyDetector(modelPath string, vocabulary []string, threshold float64) (*ONNXSafetyDetector, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	pixelTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, detectorInputSize, detectorInputSize),
		make([]float32, 3*detectorInputSize*detectorInputSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel tensor: %w", err)
	}
	boxesTensor, err := ort.NewTensor(ort.NewShape(1, maxDetections, 4), make([]float32, maxDetections*4))
	if err != nil {
		pixelTensor.Destroy()
		return nil, fmt.Errorf("failed to create boxes tensor: %w", err)
	}
	scoresTensor, err := ort.NewTensor(ort.NewShape(1, maxDetections), make([]float32, maxDetections))
	if err != nil {
		pixelTensor.Destroy()
		boxesTensor.Destroy()
		return nil, fmt.Errorf("failed to create scores tensor: %w", err)
	}
	classTensor, err := ort.NewTensor(ort.NewShape(1, maxDetections), make([]int64, maxDetections))
	if err != nil {
		pixelTensor.Destroy()
		boxesTensor.Destroy()
		scoresTensor.Destroy()
		return nil, fmt.Errorf("failed to create classes tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"boxes", "scores", "classes"},
		[]ort.ArbitraryTensor{pixelTensor},
		[]ort.ArbitraryTensor{boxesTensor, scoresTensor, classTensor},
		nil,
	)
	if err != nil {
		pixelTensor.Destroy()
		boxesTensor.Destroy()
		scoresTensor.Destroy()
		classTensor.Destroy()
		return nil, fmt.Errorf("failed to create detector session: %w", err)
	}

	return &ONNXSafetyDetector{
		session:      session,
		vocabulary:   vocabulary,
		threshold:    threshold,
		pixelTensor:  pixelTensor,
		boxesTensor:  boxesTensor,
		scoresTensor: scoresTensor,
		classTensor:  classTensor,
	}, nil
}

// Detect runs one inference over the frame and returns safety detections above
// the confidence threshold, with estimated distances.
func (d *ONNXSafetyDetector) Detect(ctx context.Context, frame *models.Frame) ([]models.SafetyDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fillDetectorInput(d.pixelTensor.GetData(), frame)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("safety inference failed: %w", err)
	}

	boxes := d.boxesTensor.GetData()
	scores := d.scoresTensor.GetData()
	classes := d.classTensor.GetData()

	var out []models.SafetyDetection
	for i := 0; i < maxDetections; i++ {
		score := float64(scores[i])
		if score < d.threshold {
			continue
		}
		classID := int(classes[i])
		if classID < 0 || classID >= len(d.vocabulary) {
			continue
		}
		// Box coordinates are normalized (x, y, w, h) over the model input.
		box := models.BoundingBox{
			X:      int(boxes[i*4] * float32(frame.Width)),
			Y:      int(boxes[i*4+1] * float32(frame.Height)),
			Width:  int(boxes[i*4+2] * float32(frame.Width)),
			Height: int(boxes[i*4+3] * float32(frame.Height)),
		}.Clamp(frame.Width, frame.Height)
		label := d.vocabulary[classID]
		out = append(out, models.SafetyDetection{
			Label:             label,
			BoundingBox:       box,
			Confidence:        score,
			EstimatedDistance: estimateDistance(label, box.Height, frame.Height),
		})
	}
	return out, nil
}

// estimateDistance approximates distance from the box's apparent height via a
// pinhole model with a nominal per-class object height.
func estimateDistance(label string, boxHeight, frameHeight int) float64 {
	if boxHeight <= 0 || frameHeight <= 0 {
		return 0
	}
	realHeight, ok := nominalHeights[label]
	if !ok {
		realHeight = 1.0
	}
	// Assume a vertical field of view of roughly one radian.
	return realHeight * float64(frameHeight) / float64(boxHeight)
}

// fillDetectorInput writes the frame into dst as CHW RGB float32 in [0,1],
// nearest-neighbor resized to the detector input size. Frames are BGR24.
func fillDetectorInput(dst []float32, frame *models.Frame) {
	stride := frame.Width * 3
	plane := detectorInputSize * detectorInputSize
	for oy := 0; oy < detectorInputSize; oy++ {
		sy := oy * frame.Height / detectorInputSize
		for ox := 0; ox < detectorInputSize; ox++ {
			sx := ox * frame.Width / detectorInputSize
			off := sy*stride + sx*3
			var b, g, r float32
			if off >= 0 && off+2 < len(frame.Data) {
				b = float32(frame.Data[off]) / 255
				g = float32(frame.Data[off+1]) / 255
				r = float32(frame.Data[off+2]) / 255
			}
			idx := oy*detectorInputSize + ox
			dst[idx] = r
			dst[plane+idx] = g
			dst[2*plane+idx] = b
		}
	}
}

// Close destroys the session and tensors.
func (d *ONNXSafetyDetector) Close() error {
	var err error
	if d.session != nil {
		err = d.session.Destroy()
		d.session = nil
	}
	if d.pixelTensor != nil {
		_ = d.pixelTensor.Destroy()
		d.pixelTensor = nil
	}
	if d.boxesTensor != nil {
		_ = d.boxesTensor.Destroy()
		d.boxesTensor = nil
	}
	if d.scoresTensor != nil {
		_ = d.scoresTensor.Destroy()
		d.scoresTensor = nil
	}
	if d.classTensor != nil {
		_ = d.classTensor.Destroy()
		d.classTensor = nil
	}
	return err
}

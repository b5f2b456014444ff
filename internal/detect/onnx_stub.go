//go:build !cgo
// +build !cgo

package detect

import "errors"

// ONNXSafetyDetector stub type when built without CGO (see onnx.go for real implementation).
type ONNXSafetyDetector struct{}

// NewONNXSafetyDetector returns an error when built without CGO (ONNX not available).
func NewONNXSafetyDetector(_ string, _ []string, _ float64) (*ONNXSafetyDetector, error) {
	return nil, errors.New("ONNX safety detector requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

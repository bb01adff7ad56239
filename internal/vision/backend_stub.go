//go:build !onnx
// +build !onnx

package vision

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set.
func NewDetectorBackend(logger *zap.Logger, config *Config) DetectorBackend {
	return nil
}

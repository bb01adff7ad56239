package vision

import (
	"context"
	"image"
)

// DetectorBackend is a pluggable detector for faces and barcodes.
// Implementations may use ONNX Runtime or an external service; the core
// only consumes Region boxes and never runs inference itself.
type DetectorBackend interface {
	// DetectRegions runs one inference over a rasterized page and returns
	// pixel-space regions at or above the configured confidence floor.
	DetectRegions(ctx context.Context, page image.Image) ([]Region, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// NewDetectorBackend is provided by the build-tagged backend files. The
// default build (no `onnx` tag) returns nil to avoid CGO dependencies.

//go:build onnx
// +build onnx

package vision

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Input geometry of the bundled detection model: square letterboxed RGB.
const (
	onnxInputSize = 640
	labelFace     = "face"
	labelBarcode  = "barcode"
)

// OnnxBackend implements DetectorBackend using ONNX Runtime (via
// yalue/onnxruntime_go). The model takes one [1,3,H,W] float32 tensor and
// emits [N,6] rows of (x0, y0, x1, y1, score, class).
type OnnxBackend struct {
	session       *ort.DynamicAdvancedSession
	inputName     string
	outputName    string
	minConfidence float64
	logger        *zap.Logger
	ready         bool
	mu            sync.RWMutex
}

// NewDetectorBackend initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewDetectorBackend(logger *zap.Logger, config *Config) DetectorBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", config.ModelPath))
		return nil
	}
	if len(inputsInfo) == 0 || len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no inputs or outputs", zap.String("model", config.ModelPath))
		return nil
	}

	inputName := inputsInfo[0].Name
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(config.ModelPath, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", config.ModelPath))
		return nil
	}

	logger.Info("ONNX vision backend ready",
		zap.String("model", config.ModelPath),
		zap.String("input", inputName),
		zap.String("output", outputName),
		zap.Float64("min_confidence", config.MinConfidence))

	return &OnnxBackend{
		session:       sess,
		inputName:     inputName,
		outputName:    outputName,
		minConfidence: config.MinConfidence,
		logger:        logger,
		ready:         true,
	}
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// DetectRegions rasterizes the page into the model's input tensor, runs
// one inference, and maps detections back to page pixel coordinates.
func (b *OnnxBackend) DetectRegions(ctx context.Context, page image.Image) ([]Region, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("onnx backend not ready")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bounds := page.Bounds()
	pageW := float64(bounds.Dx())
	pageH := float64(bounds.Dy())
	if pageW == 0 || pageH == 0 {
		return nil, fmt.Errorf("empty page image")
	}

	input, scaleX, scaleY := preprocess(page)

	shape := ort.NewShape(1, 3, onnxInputSize, onnxInputSize)
	inTensor, err := ort.NewTensor[float32](shape, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inTensor.Destroy()

	outputs := make([]ort.Value, 1)
	if err := b.session.Run([]ort.Value{inTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	data := outTensor.GetData()
	outShape := outTensor.GetShape()
	if len(outShape) != 2 || outShape[1] != 6 {
		return nil, fmt.Errorf("unsupported output shape %v (want [N,6])", outShape)
	}

	var regions []Region
	rows := int(outShape[0])
	for i := 0; i < rows; i++ {
		row := data[i*6 : i*6+6]
		score := float64(row[4])
		if score < b.minConfidence {
			continue
		}
		label := labelFace
		if int(row[5]) == 1 {
			label = labelBarcode
		}
		regions = append(regions, Region{
			Label:      label,
			Confidence: score,
			X0:         float64(row[0]) * scaleX,
			Y0:         float64(row[1]) * scaleY,
			X1:         float64(row[2]) * scaleX,
			Y1:         float64(row[3]) * scaleY,
		})
	}

	b.logger.Debug("Vision inference completed",
		zap.Int("raw_rows", rows),
		zap.Int("regions", len(regions)))

	return regions, nil
}

// preprocess resizes the page to the model input square (nearest neighbor)
// and returns CHW float32 data plus the factors mapping model coordinates
// back to page pixels.
func preprocess(page image.Image) ([]float32, float64, float64) {
	bounds := page.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, page, bounds.Min, draw.Src)

	w, h := bounds.Dx(), bounds.Dy()
	data := make([]float32, 3*onnxInputSize*onnxInputSize)
	plane := onnxInputSize * onnxInputSize

	for y := 0; y < onnxInputSize; y++ {
		srcY := bounds.Min.Y + y*h/onnxInputSize
		for x := 0; x < onnxInputSize; x++ {
			srcX := bounds.Min.X + x*w/onnxInputSize
			c := rgba.RGBAAt(srcX, srcY)
			idx := y*onnxInputSize + x
			data[idx] = float32(c.R) / 255
			data[plane+idx] = float32(c.G) / 255
			data[2*plane+idx] = float32(c.B) / 255
		}
	}

	return data, float64(w) / onnxInputSize, float64(h) / onnxInputSize
}

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	// Register decoders for the raster formats the pipeline accepts.
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/logger"
	"github.com/veil-sh/veil/internal/preset"
	"github.com/veil-sh/veil/internal/redact"
	"github.com/veil-sh/veil/internal/vision"
)

// OCREngine is the boundary to the OCR collaborator: text extraction over
// a rasterized page. Word boxes are pixel-space; the pipeline normalizes
// them against the page dimensions.
type OCREngine interface {
	Recognize(ctx context.Context, page image.Image) ([]detect.OCRWord, error)
}

// PDFEngineFactory creates a fresh PDF engine per document. Engines hold
// per-document state, so one is never shared across files.
type PDFEngineFactory func() redact.PDFEngine

// Options configures a Pipeline.
type Options struct {
	OCR           OCREngine
	PDFEngine     PDFEngineFactory
	Vision        vision.DetectorBackend
	Redaction     redact.Defaults
	MergeAdjacent bool
	MergeGapRatio float64
	JPEGQuality   int
}

// Pipeline runs the full per-file chain: rasterize, recognize, assemble,
// plan, render. It holds no per-file state and is safe to share across
// concurrent bulk tasks.
type Pipeline struct {
	opts   Options
	logger *logger.Logger
}

// New creates a pipeline. OCR is required for analysis; the PDF engine and
// vision backend are optional collaborators.
func New(opts Options, log *logger.Logger) (*Pipeline, error) {
	if opts.OCR == nil {
		return nil, fmt.Errorf("pipeline requires an OCR engine")
	}
	if log == nil {
		log, _ = logger.New(logger.Config{Level: "info", Format: "json"})
	}
	return &Pipeline{opts: opts, logger: log}, nil
}

// Analyze runs one analysis pass over a file's bytes under the given
// preset. The result's detections are immutable; Apply references them by
// id.
func (p *Pipeline) Analyze(ctx context.Context, file string, data []byte, pr *preset.Preset) (*detect.AnalyzeResult, error) {
	start := time.Now()

	pages, err := p.rasterize(file, data)
	if err != nil {
		return nil, &detect.AnalysisError{File: file, Err: err}
	}

	patterns, err := pr.CompiledPatterns()
	if err != nil {
		return nil, &detect.AnalysisError{File: file, Err: err}
	}
	classifier := detect.NewClassifier(patterns)
	assembler := detect.NewAssembler(classifier, pr.Policy(), detect.MergeConfig{
		Enabled:  p.opts.MergeAdjacent,
		GapRatio: p.opts.MergeGapRatio,
	}, p.logger.Logger)

	ocrPages := make([]detect.OCRPage, 0, len(pages))
	var external []detect.ExternalFinding

	for i, page := range pages {
		select {
		case <-ctx.Done():
			return nil, &detect.AnalysisError{File: file, Err: ctx.Err()}
		default:
		}

		words, err := p.opts.OCR.Recognize(ctx, page)
		if err != nil {
			return nil, &detect.AnalysisError{File: file, Err: fmt.Errorf("ocr failed on page %d: %w", i, err)}
		}
		bounds := page.Bounds()
		ocrPages = append(ocrPages, detect.OCRPage{
			Width:  float64(bounds.Dx()),
			Height: float64(bounds.Dy()),
			Words:  words,
		})

		if p.opts.Vision != nil && p.opts.Vision.IsReady() {
			regions, err := p.opts.Vision.DetectRegions(ctx, page)
			if err != nil {
				return nil, &detect.AnalysisError{File: file, Err: fmt.Errorf("vision detector failed on page %d: %w", i, err)}
			}
			for _, r := range regions {
				external = append(external, detect.ExternalFinding{
					Kind:       regionKind(r.Label),
					Confidence: r.Confidence,
					X0:         r.X0,
					Y0:         r.Y0,
					X1:         r.X1,
					Y1:         r.Y1,
					Page:       i,
				})
			}
		}
	}

	result, err := assembler.Assemble(file, ocrPages, external)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Analysis pass finished",
		zap.String("file", file),
		zap.Int("pages", result.PageCount),
		zap.Int("detections", len(result.Detections)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// Apply plans the approved actions against result and renders a sanitized
// copy of the file. Rendering is atomic per file: on error no output bytes
// are produced.
func (p *Pipeline) Apply(ctx context.Context, file string, data []byte, result *detect.AnalyzeResult, pr *preset.Preset, requests []redact.ActionRequest) (*redact.ApplyResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	planner := redact.NewPlanner(p.opts.Redaction, pr.StyleMap, pr.Defaults)
	actions, err := planner.Plan(result, requests)
	if err != nil {
		return nil, err
	}

	if isPDF(data) {
		if p.opts.PDFEngine == nil {
			return nil, &redact.RedactionError{Reason: "no PDF engine configured"}
		}
		renderer := redact.NewPDFRenderer(p.opts.PDFEngine(), p.logger.Logger)
		return renderer.Render(data, actions)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &redact.RedactionError{Reason: "failed to decode image", Err: err}
	}
	renderer := redact.NewImageRenderer(p.opts.JPEGQuality, p.logger.Logger)
	return renderer.Render(img, format, actions)
}

// rasterize returns one image per page: the decoded image itself, or every
// page of a PDF rendered through the PDF engine.
func (p *Pipeline) rasterize(file string, data []byte) ([]image.Image, error) {
	if isPDF(data) {
		if p.opts.PDFEngine == nil {
			return nil, fmt.Errorf("%s is a PDF but no PDF engine is configured", file)
		}
		engine := p.opts.PDFEngine()
		pageCount, err := engine.LoadDocument(data)
		if err != nil {
			return nil, fmt.Errorf("failed to load PDF: %w", err)
		}
		pages := make([]image.Image, 0, pageCount)
		for i := 0; i < pageCount; i++ {
			img, err := engine.RenderPageToImage(i)
			if err != nil {
				return nil, fmt.Errorf("failed to rasterize page %d: %w", i, err)
			}
			pages = append(pages, img)
		}
		return pages, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported file format: %w", err)
	}
	return []image.Image{img}, nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func regionKind(label string) detect.DetectionKind {
	switch strings.ToLower(label) {
	case "barcode":
		return detect.KindBarcode
	default:
		return detect.KindFace
	}
}

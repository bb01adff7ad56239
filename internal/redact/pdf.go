package redact

import (
	"fmt"
	"image"
	"image/color"

	"go.uber.org/zap"
)

// PDFEngine is the boundary to the external PDF collaborator. Veil never
// parses PDF content itself; the engine owns document loading, page
// geometry, drawing, and serialization.
type PDFEngine interface {
	// LoadDocument parses the document and returns its page count.
	LoadDocument(data []byte) (int, error)
	// PageSize returns the page dimensions in PDF user-space units.
	PageSize(page int) (width, height float64, err error)
	// RenderPageToImage rasterizes one page, for OCR input.
	RenderPageToImage(page int) (image.Image, error)
	// DrawRect draws a vector-filled rectangle in user-space coordinates.
	DrawRect(page int, x, y, w, h float64, fill color.RGBA) error
	// DrawLabel draws a filled rectangle with centered text.
	DrawLabel(page int, x, y, w, h float64, fill color.RGBA, label string) error
	// SetInfo replaces the document info dictionary. Empty fields clear
	// the corresponding entries.
	SetInfo(info PDFInfo) error
	// Save serializes the modified document.
	Save() ([]byte, error)
}

// PDFInfo is the document info dictionary written to sanitized output.
type PDFInfo struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Producer string
	Creator  string
}

// PDFRenderer applies planned actions to a PDF document through an
// injected engine.
type PDFRenderer struct {
	engine PDFEngine
	logger *zap.Logger
}

// NewPDFRenderer creates a PDF renderer bound to an engine.
func NewPDFRenderer(engine PDFEngine, logger *zap.Logger) *PDFRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFRenderer{engine: engine, logger: logger}
}

// Render loads the document, draws every action as a vector rectangle (or
// label), clears the document metadata, and serializes the result.
// Rendering is atomic: any engine failure aborts with no output.
//
// Box styles only: blur and pixelate have no vector equivalent, so for PDF
// targets they degrade to an opaque rectangle rather than offering a
// weaker raster effect the engine cannot guarantee.
func (r *PDFRenderer) Render(data []byte, actions []PlannedAction) (*ApplyResult, error) {
	pageCount, err := r.engine.LoadDocument(data)
	if err != nil {
		return nil, &RedactionError{Reason: "failed to load document", Err: err}
	}

	report := make([]ActionOutcome, 0, len(actions))
	for _, action := range actions {
		box := action.Detection.Box
		if box.Page < 0 || box.Page >= pageCount {
			return nil, &RedactionError{
				DetectionID: action.Detection.ID,
				Reason:      fmt.Sprintf("detection targets page %d of a %d-page document", box.Page, pageCount),
			}
		}

		pageW, pageH, err := r.engine.PageSize(box.Page)
		if err != nil {
			return nil, &RedactionError{DetectionID: action.Detection.ID, Reason: "failed to read page size", Err: err}
		}

		fill, err := ParseColor(action.Config.Color)
		if err != nil {
			return nil, &RedactionError{DetectionID: action.Detection.ID, Reason: "bad color", Err: err}
		}

		// PDF user space has a bottom-left origin; normalized boxes are
		// top-left. Flip the vertical axis.
		x := box.X * pageW
		y := pageH - (box.Y+box.H)*pageH
		w := box.W * pageW
		h := box.H * pageH

		if action.Style == StyleLabel {
			err = r.engine.DrawLabel(box.Page, x, y, w, h, fill, action.Config.Label)
		} else {
			err = r.engine.DrawRect(box.Page, x, y, w, h, fill)
		}
		if err != nil {
			return nil, &RedactionError{DetectionID: action.Detection.ID, Reason: "draw failed", Err: err}
		}

		report = append(report, ActionOutcome{
			DetectionID: action.Detection.ID,
			Kind:        action.Detection.Kind,
			Style:       action.Style,
			Page:        box.Page,
		})
	}

	// Title, author, subject, and keywords are cleared outright; producer
	// and creator are rewritten so the output carries no trace of the
	// authoring tool chain.
	if err := r.engine.SetInfo(PDFInfo{Producer: "veil", Creator: "veil"}); err != nil {
		return nil, &RedactionError{Reason: "failed to clear document metadata", Err: err}
	}

	out, err := r.engine.Save()
	if err != nil {
		return nil, &RedactionError{Reason: "failed to serialize document", Err: err}
	}

	r.logger.Debug("Rendered PDF redactions",
		zap.Int("actions", len(report)),
		zap.Int("pages", pageCount),
		zap.Int("output_bytes", len(out)),
	)

	return &ApplyResult{Output: out, Format: "pdf", Report: report}, nil
}

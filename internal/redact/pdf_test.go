package redact

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/veil-sh/veil/internal/detect"
)

// fakePDFEngine records every call so tests can assert coordinates and
// call order without a real PDF library.
type fakePDFEngine struct {
	pages     int
	pageW     float64
	pageH     float64
	failDraw  bool
	failSave  bool
	rects     []drawCall
	labels    []drawCall
	info      *PDFInfo
	saveCalls int
}

type drawCall struct {
	page       int
	x, y, w, h float64
	fill       color.RGBA
	label      string
}

func (f *fakePDFEngine) LoadDocument(data []byte) (int, error) {
	if f.pages == 0 {
		return 0, errors.New("empty document")
	}
	return f.pages, nil
}

func (f *fakePDFEngine) PageSize(page int) (float64, float64, error) {
	return f.pageW, f.pageH, nil
}

func (f *fakePDFEngine) RenderPageToImage(page int) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, int(f.pageW), int(f.pageH))), nil
}

func (f *fakePDFEngine) DrawRect(page int, x, y, w, h float64, fill color.RGBA) error {
	if f.failDraw {
		return errors.New("draw failed")
	}
	f.rects = append(f.rects, drawCall{page: page, x: x, y: y, w: w, h: h, fill: fill})
	return nil
}

func (f *fakePDFEngine) DrawLabel(page int, x, y, w, h float64, fill color.RGBA, label string) error {
	f.labels = append(f.labels, drawCall{page: page, x: x, y: y, w: w, h: h, fill: fill, label: label})
	return nil
}

func (f *fakePDFEngine) SetInfo(info PDFInfo) error {
	f.info = &info
	return nil
}

func (f *fakePDFEngine) Save() ([]byte, error) {
	if f.failSave {
		return nil, errors.New("save failed")
	}
	f.saveCalls++
	return []byte("%PDF-1.7 redacted"), nil
}

func pdfAction(id string, page int, style Style) PlannedAction {
	return PlannedAction{
		Detection: detect.Detection{
			ID:   id,
			Kind: detect.KindIBAN,
			Box:  detect.Box{Page: page, X: 0.1, Y: 0.2, W: 0.5, H: 0.1},
		},
		Style:  style,
		Config: DefaultConfig(),
	}
}

func TestPDFRenderCoordinates(t *testing.T) {
	// Letter-size page in points
	engine := &fakePDFEngine{pages: 2, pageW: 612, pageH: 792}
	r := NewPDFRenderer(engine, nil)

	res, err := r.Render([]byte("%PDF"), []PlannedAction{pdfAction("d-0001", 1, StyleBox)})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if res.Format != "pdf" {
		t.Errorf("format = %s, want pdf", res.Format)
	}
	if len(engine.rects) != 1 {
		t.Fatalf("got %d rects, want 1", len(engine.rects))
	}

	call := engine.rects[0]
	if call.page != 1 {
		t.Errorf("page = %d, want 1", call.page)
	}
	// Top-left box (0.1, 0.2, 0.5, 0.1) flipped into bottom-left user space
	wantX := 0.1 * 612
	wantY := 792 - (0.2+0.1)*792
	wantW := 0.5 * 612
	wantH := 0.1 * 792
	for _, c := range []struct {
		name string
		got  float64
		want float64
	}{
		{"x", call.x, wantX},
		{"y", call.y, wantY},
		{"w", call.w, wantW},
		{"h", call.h, wantH},
	} {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %f, want %f", c.name, c.got, c.want)
		}
	}
}

func TestPDFRenderStyles(t *testing.T) {
	engine := &fakePDFEngine{pages: 1, pageW: 612, pageH: 792}
	r := NewPDFRenderer(engine, nil)

	// Blur and pixelate have no vector form; they draw opaque rects
	actions := []PlannedAction{
		pdfAction("d-0001", 0, StyleBox),
		pdfAction("d-0002", 0, StyleBlur),
		pdfAction("d-0003", 0, StylePixelate),
		pdfAction("d-0004", 0, StyleLabel),
	}
	res, err := r.Render([]byte("%PDF"), actions)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if len(engine.rects) != 3 {
		t.Errorf("got %d rect calls, want 3", len(engine.rects))
	}
	if len(engine.labels) != 1 {
		t.Fatalf("got %d label calls, want 1", len(engine.labels))
	}
	if engine.labels[0].label != "REDACTED" {
		t.Errorf("label text = %q", engine.labels[0].label)
	}

	if len(res.Report) != 4 {
		t.Fatalf("report has %d entries, want 4", len(res.Report))
	}
	// The report keeps the requested style even when it degraded to a rect
	if res.Report[1].Style != StyleBlur {
		t.Errorf("report[1].Style = %s, want blur", res.Report[1].Style)
	}
}

func TestPDFRenderMetadataRewrite(t *testing.T) {
	engine := &fakePDFEngine{pages: 1, pageW: 612, pageH: 792}
	r := NewPDFRenderer(engine, nil)

	if _, err := r.Render([]byte("%PDF"), nil); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if engine.info == nil {
		t.Fatal("SetInfo was never called")
	}
	if engine.info.Producer != "veil" || engine.info.Creator != "veil" {
		t.Errorf("info = %+v, want producer and creator rewritten", engine.info)
	}
	if engine.info.Title != "" || engine.info.Author != "" {
		t.Errorf("info = %+v, want title and author cleared", engine.info)
	}
}

func TestPDFRenderPageOutOfRange(t *testing.T) {
	engine := &fakePDFEngine{pages: 2, pageW: 612, pageH: 792}
	r := NewPDFRenderer(engine, nil)

	for _, page := range []int{-1, 2, 5} {
		t.Run(fmt.Sprintf("page_%d", page), func(t *testing.T) {
			_, err := r.Render([]byte("%PDF"), []PlannedAction{pdfAction("d-0001", page, StyleBox)})
			var rerr *RedactionError
			if !errors.As(err, &rerr) {
				t.Fatalf("want RedactionError, got %v", err)
			}
			if rerr.DetectionID != "d-0001" {
				t.Errorf("error names %s, want d-0001", rerr.DetectionID)
			}
		})
	}
}

func TestPDFRenderAtomicOnFailure(t *testing.T) {
	t.Run("LoadFailure", func(t *testing.T) {
		engine := &fakePDFEngine{pages: 0}
		r := NewPDFRenderer(engine, nil)
		res, err := r.Render([]byte("%PDF"), nil)
		if err == nil || res != nil {
			t.Fatalf("want nil result and an error, got %v, %v", res, err)
		}
	})

	t.Run("DrawFailure", func(t *testing.T) {
		engine := &fakePDFEngine{pages: 1, pageW: 612, pageH: 792, failDraw: true}
		r := NewPDFRenderer(engine, nil)
		res, err := r.Render([]byte("%PDF"), []PlannedAction{pdfAction("d-0001", 0, StyleBox)})
		if err == nil || res != nil {
			t.Fatalf("want nil result and an error, got %v, %v", res, err)
		}
		if engine.saveCalls != 0 {
			t.Error("Save was called after a draw failure")
		}
	})

	t.Run("SaveFailure", func(t *testing.T) {
		engine := &fakePDFEngine{pages: 1, pageW: 612, pageH: 792, failSave: true}
		r := NewPDFRenderer(engine, nil)
		res, err := r.Render([]byte("%PDF"), nil)
		if err == nil || res != nil {
			t.Fatalf("want nil result and an error, got %v, %v", res, err)
		}
	})
}

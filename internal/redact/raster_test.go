package redact

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/veil-sh/veil/internal/detect"
)

// testImage is a 100x100 white canvas.
func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetRGBA(x, y, white)
		}
	}
	return img
}

func action(id string, style Style, cfg Config) PlannedAction {
	return PlannedAction{
		Detection: detect.Detection{
			ID:   id,
			Kind: detect.KindPAN,
			Box:  detect.Box{X: 0.2, Y: 0.2, W: 0.4, H: 0.2},
		},
		Style:  style,
		Config: DefaultConfig().Merge(cfg),
	}
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a valid png: %v", err)
	}
	return img
}

func TestRenderBoxIsOpaque(t *testing.T) {
	r := NewImageRenderer(90, nil)

	// Opacity in the config must not matter for box and solid styles
	for _, style := range []Style{StyleBox, StyleSolidColor} {
		t.Run(string(style), func(t *testing.T) {
			res, err := r.Render(testImage(), "png", []PlannedAction{
				action("d-0001", style, Config{Color: "#ff0000", Opacity: 0.3}),
			})
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			out := decodePNG(t, res.Output)

			// Center of the 20..60 x 20..40 region
			got := color.RGBAModel.Convert(out.At(40, 30)).(color.RGBA)
			want := color.RGBA{R: 0xff, A: 0xff}
			if got != want {
				t.Errorf("region pixel = %+v, want fully opaque %+v", got, want)
			}
			// Outside the region stays untouched
			edge := color.RGBAModel.Convert(out.At(5, 5)).(color.RGBA)
			if edge.R != 0xff || edge.G != 0xff || edge.B != 0xff {
				t.Errorf("pixel outside the region changed: %+v", edge)
			}
		})
	}
}

func TestRenderReport(t *testing.T) {
	r := NewImageRenderer(90, nil)
	actions := []PlannedAction{
		action("d-0001", StyleBox, Config{}),
		action("d-0002", StyleBlur, Config{}),
	}
	res, err := r.Render(testImage(), "png", actions)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(res.Report) != len(actions) {
		t.Fatalf("report has %d entries, want %d", len(res.Report), len(actions))
	}
	if res.Report[0].DetectionID != "d-0001" || res.Report[0].Style != StyleBox {
		t.Errorf("report[0] = %+v", res.Report[0])
	}
	if res.Report[1].DetectionID != "d-0002" || res.Report[1].Style != StyleBlur {
		t.Errorf("report[1] = %+v", res.Report[1])
	}
	if res.Report[0].Page != 0 {
		t.Errorf("page = %d, want 0", res.Report[0].Page)
	}
}

func TestRenderFormatNormalization(t *testing.T) {
	r := NewImageRenderer(90, nil)
	cases := map[string]string{
		"png":  "png",
		"jpeg": "jpeg",
		"jpg":  "jpeg",
		"":     "png",
	}
	for in, want := range cases {
		res, err := r.Render(testImage(), in, []PlannedAction{action("d-0001", StyleBox, Config{})})
		if err != nil {
			t.Fatalf("render(%q) failed: %v", in, err)
		}
		if res.Format != want {
			t.Errorf("format %q normalized to %q, want %q", in, res.Format, want)
		}
	}
}

func TestRenderRejectsNonZeroPage(t *testing.T) {
	r := NewImageRenderer(90, nil)
	a := action("d-0001", StyleBox, Config{})
	a.Detection.Box.Page = 2

	_, err := r.Render(testImage(), "png", []PlannedAction{a})
	var rerr *RedactionError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RedactionError, got %v", err)
	}
	if rerr.DetectionID != "d-0001" {
		t.Errorf("error names %s, want d-0001", rerr.DetectionID)
	}
}

func TestRenderEmptyRegion(t *testing.T) {
	r := NewImageRenderer(90, nil)
	a := action("d-0001", StyleBox, Config{})
	a.Detection.Box.W = 0
	a.Detection.Box.H = 0

	if _, err := r.Render(testImage(), "png", []PlannedAction{a}); err == nil {
		t.Fatal("expected an error for a zero-area box")
	}
}

func TestRenderBadColor(t *testing.T) {
	r := NewImageRenderer(90, nil)
	a := action("d-0001", StyleBox, Config{Color: "red"})

	_, err := r.Render(testImage(), "png", []PlannedAction{a})
	var rerr *RedactionError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RedactionError, got %v", err)
	}
}

func TestRenderPixelateMutatesRegion(t *testing.T) {
	// Checkerboard so averaging visibly changes pixels
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if (x+y)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{A: 0xff})
			} else {
				img.SetRGBA(x, y, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
			}
		}
	}

	r := NewImageRenderer(90, nil)
	res, err := r.Render(img, "png", []PlannedAction{
		action("d-0001", StylePixelate, Config{PixelateBlock: 10}),
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := decodePNG(t, res.Output)

	// Averaged cells end up mid-gray, not black or white
	got := color.RGBAModel.Convert(out.At(40, 30)).(color.RGBA)
	if got.R < 0x40 || got.R > 0xc0 {
		t.Errorf("pixelated pixel = %+v, want a mid-range average", got)
	}
	// Outside the region the checkerboard is intact
	edge := color.RGBAModel.Convert(out.At(0, 0)).(color.RGBA)
	if edge.R != 0 || edge.G != 0 || edge.B != 0 {
		t.Errorf("pixel outside the region changed: %+v", edge)
	}
}

func TestRenderLabelDrawsFill(t *testing.T) {
	r := NewImageRenderer(90, nil)
	res, err := r.Render(testImage(), "png", []PlannedAction{
		action("d-0001", StyleLabel, Config{Color: "#000000", Label: "REDACTED"}),
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := decodePNG(t, res.Output)

	// Region corner carries the fill; text sits in the middle
	got := color.RGBAModel.Convert(out.At(21, 21)).(color.RGBA)
	if got.R != 0 || got.G != 0 || got.B != 0 {
		t.Errorf("label fill pixel = %+v, want black", got)
	}

	// Some pixel near the center should be the white text
	foundText := false
	for y := 25; y < 35 && !foundText; y++ {
		for x := 30; x < 70; x++ {
			c := color.RGBAModel.Convert(out.At(x, y)).(color.RGBA)
			if c.R > 0xf0 && c.G > 0xf0 && c.B > 0xf0 {
				foundText = true
				break
			}
		}
	}
	if !foundText {
		t.Error("no text pixels found in the label region")
	}
}

func TestRenderUnknownStyle(t *testing.T) {
	r := NewImageRenderer(90, nil)
	a := action("d-0001", Style("sparkle"), Config{})

	if _, err := r.Render(testImage(), "png", []PlannedAction{a}); err == nil {
		t.Fatal("expected an error for an unknown style")
	}
}

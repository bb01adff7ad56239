package redact

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageRenderer applies planned actions onto a raster image and re-encodes
// it. Re-encoding through image/png or image/jpeg writes only pixel data,
// so EXIF and all other source metadata are dropped from the output.
type ImageRenderer struct {
	jpegQuality int
	logger      *zap.Logger
}

// NewImageRenderer creates a raster renderer. jpegQuality outside [1,100]
// falls back to 90.
func NewImageRenderer(jpegQuality int, logger *zap.Logger) *ImageRenderer {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageRenderer{jpegQuality: jpegQuality, logger: logger}
}

// Render draws the actions in painter's-algorithm order (later actions
// draw over earlier ones) and encodes the result as format ("png" or
// "jpeg"). Rendering is atomic: any failure returns an error and no
// partially redacted bytes.
func (r *ImageRenderer) Render(src image.Image, format string, actions []PlannedAction) (*ApplyResult, error) {
	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	report := make([]ActionOutcome, 0, len(actions))
	for _, action := range actions {
		if action.Detection.Box.Page != 0 {
			return nil, &RedactionError{
				DetectionID: action.Detection.ID,
				Reason:      fmt.Sprintf("detection targets page %d of a single-page image", action.Detection.Box.Page),
			}
		}
		if err := r.apply(canvas, action); err != nil {
			return nil, err
		}
		report = append(report, ActionOutcome{
			DetectionID: action.Detection.ID,
			Kind:        action.Detection.Kind,
			Style:       action.Style,
			Page:        0,
		})
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: r.jpegQuality}); err != nil {
			return nil, &RedactionError{Reason: "jpeg encode failed", Err: err}
		}
		format = "jpeg"
	default:
		if err := png.Encode(&buf, canvas); err != nil {
			return nil, &RedactionError{Reason: "png encode failed", Err: err}
		}
		format = "png"
	}

	r.logger.Debug("Rendered raster redactions",
		zap.Int("actions", len(report)),
		zap.String("format", format),
		zap.Int("output_bytes", buf.Len()),
	)

	return &ApplyResult{Output: buf.Bytes(), Format: format, Report: report}, nil
}

func (r *ImageRenderer) apply(canvas *image.RGBA, action PlannedAction) error {
	rect := pixelRect(canvas.Bounds(), action.Detection.Box.X, action.Detection.Box.Y,
		action.Detection.Box.W, action.Detection.Box.H)
	if rect.Empty() {
		return &RedactionError{
			DetectionID: action.Detection.ID,
			Reason:      "detection box maps to an empty pixel region",
		}
	}

	fill, err := ParseColor(action.Config.Color)
	if err != nil {
		return &RedactionError{DetectionID: action.Detection.ID, Reason: "bad color", Err: err}
	}

	switch action.Style {
	case StyleBox, StyleSolidColor:
		// Always fully opaque regardless of configured opacity: these
		// styles promise that content beneath is unrecoverable. The other
		// styles ignore opacity too; see the note on Config.
		draw.Draw(canvas, rect, &image.Uniform{fill}, image.Point{}, draw.Src)
	case StyleBlur:
		boxBlur(canvas, rect, action.Config.BlurRadius)
	case StylePixelate:
		pixelate(canvas, rect, action.Config.PixelateBlock)
	case StyleLabel:
		draw.Draw(canvas, rect, &image.Uniform{fill}, image.Point{}, draw.Src)
		drawLabel(canvas, rect, action.Config.Label, fill)
	default:
		return &RedactionError{
			DetectionID: action.Detection.ID,
			Reason:      fmt.Sprintf("unknown style %q", action.Style),
		}
	}
	return nil
}

// pixelRect converts a normalized box to pixel coordinates within bounds.
func pixelRect(bounds image.Rectangle, x, y, w, h float64) image.Rectangle {
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())
	rect := image.Rect(
		bounds.Min.X+int(x*width),
		bounds.Min.Y+int(y*height),
		bounds.Min.X+int((x+w)*width+0.5),
		bounds.Min.Y+int((y+h)*height+0.5),
	)
	return rect.Intersect(bounds)
}

// boxBlur applies a separable box blur to the region. Sampling is clamped
// to the region so surrounding content does not bleed in.
func boxBlur(img *image.RGBA, rect image.Rectangle, radius int) {
	if radius < 1 {
		radius = 8
	}

	blurPass := func(src *image.RGBA, horizontal bool) *image.RGBA {
		dst := image.NewRGBA(rect)
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				var sr, sg, sb, sa, n int
				for d := -radius; d <= radius; d++ {
					sx, sy := x, y
					if horizontal {
						sx += d
					} else {
						sy += d
					}
					if sx < rect.Min.X || sx >= rect.Max.X || sy < rect.Min.Y || sy >= rect.Max.Y {
						continue
					}
					c := src.RGBAAt(sx, sy)
					sr += int(c.R)
					sg += int(c.G)
					sb += int(c.B)
					sa += int(c.A)
					n++
				}
				dst.SetRGBA(x, y, color.RGBA{
					R: uint8(sr / n),
					G: uint8(sg / n),
					B: uint8(sb / n),
					A: uint8(sa / n),
				})
			}
		}
		return dst
	}

	region := image.NewRGBA(rect)
	draw.Draw(region, rect, img, rect.Min, draw.Src)
	region = blurPass(region, true)
	region = blurPass(region, false)
	draw.Draw(img, rect, region, rect.Min, draw.Src)
}

// pixelate replaces each block of the region with its average color.
func pixelate(img *image.RGBA, rect image.Rectangle, block int) {
	if block < 2 {
		block = 12
	}
	for by := rect.Min.Y; by < rect.Max.Y; by += block {
		for bx := rect.Min.X; bx < rect.Max.X; bx += block {
			cell := image.Rect(bx, by, bx+block, by+block).Intersect(rect)
			var sr, sg, sb, n int
			for y := cell.Min.Y; y < cell.Max.Y; y++ {
				for x := cell.Min.X; x < cell.Max.X; x++ {
					c := img.RGBAAt(x, y)
					sr += int(c.R)
					sg += int(c.G)
					sb += int(c.B)
					n++
				}
			}
			if n == 0 {
				continue
			}
			avg := color.RGBA{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n), A: 0xff}
			draw.Draw(img, cell, &image.Uniform{avg}, image.Point{}, draw.Src)
		}
	}
}

// drawLabel centers the label text in the rect with a one-pixel shadow.
// Text color is white or black, whichever contrasts with the fill.
func drawLabel(img *image.RGBA, rect image.Rectangle, label string, fill color.RGBA) {
	if label == "" {
		return
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	textHeight := face.Metrics().Ascent.Ceil()

	x := rect.Min.X + (rect.Dx()-textWidth)/2
	y := rect.Min.Y + (rect.Dy()+textHeight)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}

	textColor := color.RGBA{A: 0xff}
	// Perceived luminance of the fill decides the text color.
	if 299*int(fill.R)+587*int(fill.G)+114*int(fill.B) < 500*255 {
		textColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}

	shadow := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.RGBA{A: 0x80}},
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	shadow.DrawString(label)

	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{textColor},
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}

package redact

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/veil-sh/veil/internal/detect"
)

// Style is how one detection gets obscured.
type Style string

const (
	// StyleBox and StyleSolidColor fill the region with an opaque color.
	// Content beneath is unrecoverable in the output bytes.
	StyleBox        Style = "box"
	StyleSolidColor Style = "solid_color"
	// StyleBlur and StylePixelate are weaker guarantees: the region is
	// convolved or downsampled, which a determined attacker may be able
	// to partially invert. Use box styles for anything truly sensitive.
	StyleBlur     Style = "blur"
	StylePixelate Style = "pixelate"
	// StyleLabel fills the region and draws centered text over it.
	StyleLabel Style = "label"
)

// ParseStyle parses a style name, case-insensitively.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(s)) {
	case StyleBox:
		return StyleBox, nil
	case StyleSolidColor:
		return StyleSolidColor, nil
	case StyleBlur:
		return StyleBlur, nil
	case StylePixelate:
		return StylePixelate, nil
	case StyleLabel:
		return StyleLabel, nil
	default:
		return "", fmt.Errorf("unknown redaction style: %q", s)
	}
}

// Config carries rendering parameters for one action. Zero values mean
// "unset" and fall through to the next layer in the merge chain.
//
// Opacity is accepted and merged but no renderer applies it: a translucent
// redaction would leak the content beneath, so every raster style draws
// fully opaque (see ImageRenderer) and the PDF surface knows only solid
// rectangles.
type Config struct {
	Color         string  `json:"color,omitempty"` // #RRGGBB
	Opacity       float64 `json:"opacity,omitempty"`
	Label         string  `json:"label,omitempty"`
	PixelateBlock int     `json:"pixelate_block,omitempty"`
	BlurRadius    int     `json:"blur_radius,omitempty"`
}

// Merge layers override on top of c: set fields in override win.
func (c Config) Merge(override Config) Config {
	if override.Color != "" {
		c.Color = override.Color
	}
	if override.Opacity != 0 {
		c.Opacity = override.Opacity
	}
	if override.Label != "" {
		c.Label = override.Label
	}
	if override.PixelateBlock != 0 {
		c.PixelateBlock = override.PixelateBlock
	}
	if override.BlurRadius != 0 {
		c.BlurRadius = override.BlurRadius
	}
	return c
}

// DefaultConfig is the global bottom layer of the config merge chain.
func DefaultConfig() Config {
	return Config{
		Color:         "#000000",
		Opacity:       1.0,
		Label:         "REDACTED",
		PixelateBlock: 12,
		BlurRadius:    8,
	}
}

// ParseColor parses a #RRGGBB string into an opaque RGBA color.
func ParseColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// ActionRequest is one user-approved redaction before planning: the
// detection it targets plus optional style/config overrides.
type ActionRequest struct {
	DetectionID string `json:"detection_id"`
	Style       Style  `json:"style,omitempty"`
	Config      Config `json:"config,omitempty"`
}

// PlannedAction is a fully resolved action: the planner has already bound
// the detection and collapsed the style/config merge chain, so renderers
// need nothing else.
type PlannedAction struct {
	Detection detect.Detection
	Style     Style
	Config    Config
}

// ActionOutcome records how one planned action was rendered.
type ActionOutcome struct {
	DetectionID string              `json:"detection_id"`
	Kind        detect.DetectionKind `json:"kind"`
	Style       Style               `json:"style"`
	Page        int                 `json:"page"`
}

// ApplyResult is the output of rendering one file. Report always has one
// entry per applied action.
type ApplyResult struct {
	Output []byte          `json:"-"`
	Format string          `json:"format"`
	Report []ActionOutcome `json:"report"`
}

// RedactionError reports a failure to redact. Rendering a file is atomic:
// on any RedactionError the file produces no output at all, rather than a
// partially redacted artifact.
type RedactionError struct {
	DetectionID string
	Reason      string
	Err         error
}

func (e *RedactionError) Error() string {
	if e.DetectionID != "" {
		return fmt.Sprintf("redaction failed for detection %s: %s", e.DetectionID, e.Reason)
	}
	return fmt.Sprintf("redaction failed: %s", e.Reason)
}

func (e *RedactionError) Unwrap() error { return e.Err }

package redact

import (
	"errors"
	"testing"

	"github.com/veil-sh/veil/internal/detect"
)

func sampleResult() *detect.AnalyzeResult {
	return &detect.AnalyzeResult{
		File:      "doc.png",
		PageCount: 1,
		Detections: []detect.Detection{
			{ID: "d-0001", Kind: detect.KindPAN, Box: detect.Box{X: 0.1, Y: 0.1, W: 0.3, H: 0.05}, Confidence: 0.94},
			{ID: "d-0002", Kind: detect.KindEmail, Box: detect.Box{X: 0.1, Y: 0.3, W: 0.2, H: 0.05}, Confidence: 0.78},
			{ID: "d-0003", Kind: detect.KindJWT, Box: detect.Box{X: 0.1, Y: 0.5, W: 0.6, H: 0.05}, Confidence: 0.85},
		},
	}
}

func TestPlanStyleResolution(t *testing.T) {
	styleMap := map[detect.DetectionKind]Style{
		detect.KindEmail: StyleBlur,
		detect.KindJWT:   StyleLabel,
	}
	p := NewPlanner(Defaults{}, styleMap, Config{})
	result := sampleResult()

	t.Run("KindDefault", func(t *testing.T) {
		actions, err := p.Plan(result, []ActionRequest{{DetectionID: "d-0002"}})
		if err != nil {
			t.Fatalf("plan failed: %v", err)
		}
		if len(actions) != 1 || actions[0].Style != StyleBlur {
			t.Fatalf("got %+v, want one blur action from the style map", actions)
		}
	})

	t.Run("FallbackBox", func(t *testing.T) {
		// PAN has no style map entry, so it falls back to box
		actions, err := p.Plan(result, []ActionRequest{{DetectionID: "d-0001"}})
		if err != nil {
			t.Fatalf("plan failed: %v", err)
		}
		if actions[0].Style != StyleBox {
			t.Errorf("style = %s, want box fallback", actions[0].Style)
		}
	})

	t.Run("PerActionOverride", func(t *testing.T) {
		actions, err := p.Plan(result, []ActionRequest{
			{DetectionID: "d-0002", Style: StylePixelate},
		})
		if err != nil {
			t.Fatalf("plan failed: %v", err)
		}
		if actions[0].Style != StylePixelate {
			t.Errorf("style = %s, want the per-action pixelate override", actions[0].Style)
		}
	})
}

func TestPlanConfigMergeChain(t *testing.T) {
	preset := Config{Color: "#112233", Label: "SECRET"}
	p := NewPlanner(Defaults{}, nil, preset)
	result := sampleResult()

	actions, err := p.Plan(result, []ActionRequest{
		{DetectionID: "d-0001", Config: Config{Color: "#ff0000"}},
		{DetectionID: "d-0002"},
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	// Per-action override wins over the preset layer
	if actions[0].Config.Color != "#ff0000" {
		t.Errorf("color = %s, want the per-action override", actions[0].Config.Color)
	}
	// Preset layer wins over the global defaults
	if actions[1].Config.Color != "#112233" {
		t.Errorf("color = %s, want the preset layer", actions[1].Config.Color)
	}
	if actions[1].Config.Label != "SECRET" {
		t.Errorf("label = %s, want the preset layer", actions[1].Config.Label)
	}
	// Fields no layer sets come from the global defaults
	if actions[0].Config.PixelateBlock != DefaultConfig().PixelateBlock {
		t.Errorf("pixelate block = %d, want the global default", actions[0].Config.PixelateBlock)
	}
}

func TestPlanConfiguredDefaults(t *testing.T) {
	defaults := Defaults{
		Style:  StylePixelate,
		Config: Config{Color: "#336699", PixelateBlock: 20},
	}
	result := sampleResult()

	t.Run("StyleFallback", func(t *testing.T) {
		p := NewPlanner(defaults, nil, Config{})
		actions, err := p.Plan(result, []ActionRequest{{DetectionID: "d-0001"}})
		if err != nil {
			t.Fatalf("plan failed: %v", err)
		}
		if actions[0].Style != StylePixelate {
			t.Errorf("style = %s, want the configured default", actions[0].Style)
		}
		if actions[0].Config.Color != "#336699" {
			t.Errorf("color = %s, want the configured default", actions[0].Config.Color)
		}
		if actions[0].Config.PixelateBlock != 20 {
			t.Errorf("pixelate block = %d, want the configured default", actions[0].Config.PixelateBlock)
		}
		// Fields the configuration leaves unset still come from DefaultConfig
		if actions[0].Config.Label != DefaultConfig().Label {
			t.Errorf("label = %s, want the built-in default", actions[0].Config.Label)
		}
	})

	t.Run("PresetStillWins", func(t *testing.T) {
		p := NewPlanner(defaults, map[detect.DetectionKind]Style{detect.KindPAN: StyleBox},
			Config{Color: "#000000"})
		actions, err := p.Plan(result, []ActionRequest{{DetectionID: "d-0001"}})
		if err != nil {
			t.Fatalf("plan failed: %v", err)
		}
		if actions[0].Style != StyleBox {
			t.Errorf("style = %s, want the preset style map over the default", actions[0].Style)
		}
		if actions[0].Config.Color != "#000000" {
			t.Errorf("color = %s, want the preset layer over the default", actions[0].Config.Color)
		}
	})
}

func TestPlanUnknownDetectionID(t *testing.T) {
	p := NewPlanner(Defaults{}, nil, Config{})
	result := sampleResult()

	_, err := p.Plan(result, []ActionRequest{
		{DetectionID: "d-0001"},
		{DetectionID: "d-9999"},
	})
	if err == nil {
		t.Fatal("expected an error for the unknown detection id")
	}

	var rerr *RedactionError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RedactionError, got %T", err)
	}
	if rerr.DetectionID != "d-9999" {
		t.Errorf("error names %s, want d-9999", rerr.DetectionID)
	}
}

func TestPlanDeterministicOrder(t *testing.T) {
	p := NewPlanner(Defaults{}, nil, Config{})
	result := sampleResult()

	// Requests arrive in reverse; output follows detection order
	actions, err := p.Plan(result, []ActionRequest{
		{DetectionID: "d-0003"},
		{DetectionID: "d-0001"},
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Detection.ID != "d-0001" || actions[1].Detection.ID != "d-0003" {
		t.Errorf("order = %s, %s; want detection iteration order", actions[0].Detection.ID, actions[1].Detection.ID)
	}
}

func TestParseStyle(t *testing.T) {
	for _, name := range []string{"box", "BOX", "solid_color", "blur", "Pixelate", "label"} {
		if _, err := ParseStyle(name); err != nil {
			t.Errorf("ParseStyle(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseStyle("sparkle"); err == nil {
		t.Error("expected an error for an unknown style")
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#1a2b3c")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if c.R != 0x1a || c.G != 0x2b || c.B != 0x3c || c.A != 0xff {
		t.Errorf("got %+v", c)
	}

	for _, bad := range []string{"", "1a2b3c", "#12345", "#gggggg"} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

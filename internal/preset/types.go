package preset

import (
	"fmt"
	"time"

	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/redact"
)

// Preset is a named detection + style policy. Built-in presets are
// read-only seed data; user presets are mutable records with version
// tracking. A preset is read-only during analysis and safe to share
// across concurrent file tasks.
type Preset struct {
	ID                  string                                 `json:"id"`
	Name                string                                 `json:"name"`
	BuiltIn             bool                                   `json:"built_in"`
	EnabledKinds        []detect.DetectionKind                 `json:"enabled_kinds"`
	StyleMap            map[detect.DetectionKind]redact.Style  `json:"style_map,omitempty"`
	Defaults            redact.Config                          `json:"defaults,omitempty"`
	CustomPatterns      []CustomPattern                        `json:"custom_patterns,omitempty"`
	ConfidenceThreshold float64                                `json:"confidence_threshold"`
	CreatedAt           time.Time                              `json:"created_at,omitempty"`
	UpdatedAt           time.Time                              `json:"updated_at,omitempty"`
	Version             int                                    `json:"version,omitempty"`
}

// CustomPattern is the stored form of a user regex rule. The pattern is
// compiled (and thereby validated) when the preset is validated, and again
// once per classifier construction - never per match.
type CustomPattern struct {
	ID            string               `json:"id"`
	Pattern       string               `json:"pattern"`
	Kind          detect.DetectionKind `json:"kind"`
	Confidence    float64              `json:"confidence"`
	CaseSensitive bool                 `json:"case_sensitive"`
}

// ValidationError reports an invalid preset schema. Presets failing
// validation are rejected before use, never silently ignored.
type ValidationError struct {
	PresetID string
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid preset %q: %s: %s", e.PresetID, e.Field, e.Message)
}

// Validate checks the preset schema: threshold range, known kinds, known
// styles, and compilable custom patterns.
func (p *Preset) Validate() error {
	if p.ID == "" {
		return &ValidationError{PresetID: p.ID, Field: "id", Message: "must not be empty"}
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return &ValidationError{
			PresetID: p.ID,
			Field:    "confidence_threshold",
			Message:  fmt.Sprintf("%g outside [0,1]", p.ConfidenceThreshold),
		}
	}
	if len(p.EnabledKinds) == 0 {
		return &ValidationError{PresetID: p.ID, Field: "enabled_kinds", Message: "must not be empty"}
	}
	for _, k := range p.EnabledKinds {
		if !k.IsValid() {
			return &ValidationError{PresetID: p.ID, Field: "enabled_kinds", Message: fmt.Sprintf("unknown kind %q", k)}
		}
	}
	for k, s := range p.StyleMap {
		if !k.IsValid() {
			return &ValidationError{PresetID: p.ID, Field: "style_map", Message: fmt.Sprintf("unknown kind %q", k)}
		}
		if _, err := redact.ParseStyle(string(s)); err != nil {
			return &ValidationError{PresetID: p.ID, Field: "style_map", Message: err.Error()}
		}
	}
	for _, cp := range p.CustomPatterns {
		if _, err := detect.CompilePattern(cp.ID, cp.Pattern, cp.Kind, cp.Confidence, cp.CaseSensitive); err != nil {
			return &ValidationError{PresetID: p.ID, Field: "custom_patterns", Message: err.Error()}
		}
	}
	return nil
}

// Policy returns the assembler's view of this preset.
func (p *Preset) Policy() detect.Policy {
	enabled := make(map[detect.DetectionKind]bool, len(p.EnabledKinds))
	for _, k := range p.EnabledKinds {
		enabled[k] = true
	}
	return detect.Policy{Enabled: enabled, Threshold: p.ConfidenceThreshold}
}

// CompiledPatterns compiles the preset's custom patterns for classifier
// construction. Validate catches errors earlier, so a failure here means
// the preset bypassed validation.
func (p *Preset) CompiledPatterns() ([]detect.CompiledPattern, error) {
	if len(p.CustomPatterns) == 0 {
		return nil, nil
	}
	out := make([]detect.CompiledPattern, 0, len(p.CustomPatterns))
	for _, cp := range p.CustomPatterns {
		compiled, err := detect.CompilePattern(cp.ID, cp.Pattern, cp.Kind, cp.Confidence, cp.CaseSensitive)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

// Clone returns a deep copy, so stored presets can be handed out without
// aliasing mutable state.
func (p *Preset) Clone() *Preset {
	cp := *p
	cp.EnabledKinds = append([]detect.DetectionKind(nil), p.EnabledKinds...)
	if p.StyleMap != nil {
		cp.StyleMap = make(map[detect.DetectionKind]redact.Style, len(p.StyleMap))
		for k, v := range p.StyleMap {
			cp.StyleMap[k] = v
		}
	}
	cp.CustomPatterns = append([]CustomPattern(nil), p.CustomPatterns...)
	return &cp
}

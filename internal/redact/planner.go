package redact

import (
	"github.com/veil-sh/veil/internal/detect"
)

// Defaults is the installation-wide bottom layer of style and config
// resolution, populated from the redaction section of the configuration
// file. Zero values fall back to StyleBox and DefaultConfig.
type Defaults struct {
	Style  Style
	Config Config
}

// Planner maps approved detection ids to fully resolved actions. Style
// resolution order is per-action override, then the per-kind style map,
// then the configured default style. Config resolution layers global
// defaults, preset defaults, and the per-action override, later layers
// winning.
type Planner struct {
	styleMap      map[detect.DetectionKind]Style
	presetConfig  Config
	defaultStyle  Style
	defaultConfig Config
}

// NewPlanner creates a planner for one preset's style policy on top of the
// configured defaults. styleMap may be partial or nil; presetConfig may be
// the zero Config.
func NewPlanner(defaults Defaults, styleMap map[detect.DetectionKind]Style, presetConfig Config) *Planner {
	style := defaults.Style
	if style == "" {
		style = StyleBox
	}
	return &Planner{
		styleMap:      styleMap,
		presetConfig:  presetConfig,
		defaultStyle:  style,
		defaultConfig: DefaultConfig().Merge(defaults.Config),
	}
}

// Plan resolves the requested actions against the detections of one
// analysis result. A request referencing an unknown detection id is a
// RedactionError - the planner never substitutes a guessed position.
// Output preserves detection iteration order so rendering is deterministic
// regardless of request order.
func (p *Planner) Plan(result *detect.AnalyzeResult, requests []ActionRequest) ([]PlannedAction, error) {
	byID := make(map[string]ActionRequest, len(requests))
	for _, req := range requests {
		if _, ok := result.Find(req.DetectionID); !ok {
			return nil, &RedactionError{
				DetectionID: req.DetectionID,
				Reason:      "no such detection in this analysis result",
			}
		}
		byID[req.DetectionID] = req
	}

	actions := make([]PlannedAction, 0, len(byID))
	for _, det := range result.Detections {
		req, ok := byID[det.ID]
		if !ok {
			continue
		}

		style := req.Style
		if style == "" {
			style = p.styleMap[det.Kind]
		}
		if style == "" {
			style = p.defaultStyle
		}

		cfg := p.defaultConfig.Merge(p.presetConfig).Merge(req.Config)

		actions = append(actions, PlannedAction{
			Detection: det,
			Style:     style,
			Config:    cfg,
		})
	}

	return actions, nil
}

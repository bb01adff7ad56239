package detect

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Policy is the slice of a preset the assembler needs: which kinds to keep
// and the minimum confidence. It is read-only during analysis.
type Policy struct {
	Enabled   map[DetectionKind]bool
	Threshold float64
}

// Allows reports whether a detection with the given kind and confidence
// survives the policy filter.
func (p Policy) Allows(kind DetectionKind, confidence float64) bool {
	if p.Enabled != nil && !p.Enabled[kind] {
		return false
	}
	return confidence >= p.Threshold
}

// MergeConfig controls adjacent-token merging for heuristic multi-token
// detections (names, address components).
type MergeConfig struct {
	Enabled bool
	// GapRatio is the maximum horizontal gap between two tokens, as a
	// multiple of token height, for them to count as contiguous.
	GapRatio float64
}

// ExternalFinding is a pre-classified region reported by an external
// detector (faces, barcodes). Coordinates are pixel-space for the page the
// finding references.
type ExternalFinding struct {
	Kind       DetectionKind
	Confidence float64
	X0, Y0     float64
	X1, Y1     float64
	Page       int
}

// Assembler turns OCR token streams and external findings into a filtered,
// deduplicated AnalyzeResult with stable detection ids. One assembler is
// safe for concurrent use across files; each call owns its own state.
type Assembler struct {
	classifier *Classifier
	policy     Policy
	merge      MergeConfig
	logger     *zap.Logger
}

// NewAssembler creates an assembler for one preset policy.
func NewAssembler(classifier *Classifier, policy Policy, merge MergeConfig, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		classifier: classifier,
		policy:     policy,
		merge:      merge,
		logger:     logger,
	}
}

// candidate is an in-flight detection before id assignment.
type candidate struct {
	kind       DetectionKind
	box        Box
	confidence float64
	reason     string
	preview    string
	order      int // original token order, for stable ids and tie-breaks
}

// Assemble runs one analysis pass. Detection ids are assigned in a stable,
// reproducible order for a given input: page order, then token order.
func (a *Assembler) Assemble(file string, pages []OCRPage, external []ExternalFinding) (*AnalyzeResult, error) {
	for i := range pages {
		if err := pages[i].Validate(); err != nil {
			return nil, &AnalysisError{File: file, Err: fmt.Errorf("page %d: %w", i, err)}
		}
	}

	order := 0
	var cands []candidate

	for pageIdx := range pages {
		page := &pages[pageIdx]
		var pageCands []candidate

		for _, word := range page.Words {
			token := strings.TrimSpace(word.Text)
			if token == "" {
				order++
				continue
			}

			cand, ok := a.classifier.Classify(token)
			if !ok {
				order++
				continue
			}

			conf := ScoreCandidate(cand, token, word.Confidence)
			box := Box{
				X:    word.X0 / page.Width,
				Y:    word.Y0 / page.Height,
				W:    (word.X1 - word.X0) / page.Width,
				H:    (word.Y1 - word.Y0) / page.Height,
				Page: pageIdx,
			}.Clamp()

			pageCands = append(pageCands, candidate{
				kind:       cand.Kind,
				box:        box,
				confidence: conf,
				reason:     cand.Reason,
				preview:    preview(token),
				order:      order,
			})
			order++
		}

		if a.merge.Enabled {
			pageCands = mergeAdjacent(pageCands, a.merge.GapRatio)
		}
		cands = append(cands, pageCands...)
	}

	for _, ext := range external {
		if ext.Page < 0 || ext.Page >= len(pages) {
			return nil, &AnalysisError{
				File: file,
				Err:  fmt.Errorf("external finding references page %d of %d", ext.Page, len(pages)),
			}
		}
		page := &pages[ext.Page]
		box := Box{
			X:    ext.X0 / page.Width,
			Y:    ext.Y0 / page.Height,
			W:    (ext.X1 - ext.X0) / page.Width,
			H:    (ext.Y1 - ext.Y0) / page.Height,
			Page: ext.Page,
		}.Clamp()

		cands = append(cands, candidate{
			kind:       ext.Kind,
			box:        box,
			confidence: clamp01(ext.Confidence),
			reason:     fmt.Sprintf("reported by external %s detector", strings.ToLower(string(ext.Kind))),
			order:      order,
		})
		order++
	}

	// Policy filter, then overlap dedup on the survivors.
	filtered := cands[:0]
	for _, c := range cands {
		if a.policy.Allows(c.kind, c.confidence) {
			filtered = append(filtered, c)
		}
	}
	filtered = dedupe(filtered)

	result := &AnalyzeResult{
		File:       file,
		PageCount:  len(pages),
		Detections: make([]Detection, 0, len(filtered)),
	}
	for i, c := range filtered {
		result.Detections = append(result.Detections, Detection{
			ID:         fmt.Sprintf("d-%04d", i+1),
			Kind:       c.kind,
			Box:        c.box,
			Confidence: c.confidence,
			Reason:     c.reason,
			Preview:    c.preview,
		})
	}

	a.logger.Debug("Assembled detections",
		zap.String("file", file),
		zap.Int("pages", len(pages)),
		zap.Int("raw_candidates", len(cands)),
		zap.Int("retained", len(result.Detections)),
	)

	return result, nil
}

// mergeAdjacent merges runs of same-kind heuristic detections (NAME,
// ADDRESS) whose boxes are horizontally contiguous on the same baseline.
// Checksummed and structural kinds never merge.
func mergeAdjacent(cands []candidate, gapRatio float64) []candidate {
	if len(cands) < 2 {
		return cands
	}
	if gapRatio <= 0 {
		gapRatio = 1.5
	}

	out := make([]candidate, 0, len(cands))
	cur := cands[0]

	for _, next := range cands[1:] {
		if mergeable(cur, next, gapRatio) {
			cur = candidate{
				kind:       cur.kind,
				box:        cur.box.Union(next.box),
				confidence: max(cur.confidence, next.confidence),
				reason:     cur.reason,
				preview:    strings.TrimSpace(cur.preview + " " + next.preview),
				order:      cur.order,
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

func mergeable(a, b candidate, gapRatio float64) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind != KindName && a.kind != KindAddress {
		return false
	}
	if a.box.Page != b.box.Page {
		return false
	}
	// Same baseline: vertical ranges must overlap.
	if a.box.Y+a.box.H < b.box.Y || b.box.Y+b.box.H < a.box.Y {
		return false
	}
	gap := b.box.X - (a.box.X + a.box.W)
	maxGap := gapRatio * max(a.box.H, b.box.H)
	return gap >= 0 && gap <= maxGap
}

// dedupe resolves overlapping detections: the highest-confidence one wins,
// ties go to the smaller box, remaining ties to the earlier token. Output
// keeps original token order.
func dedupe(cands []candidate) []candidate {
	if len(cands) < 2 {
		return cands
	}

	ranked := make([]int, len(cands))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(x, y int) bool {
		a, b := cands[ranked[x]], cands[ranked[y]]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.box.Area() != b.box.Area() {
			return a.box.Area() < b.box.Area()
		}
		return a.order < b.order
	})

	suppressed := make([]bool, len(cands))
	for xi, x := range ranked {
		if suppressed[x] {
			continue
		}
		for _, y := range ranked[xi+1:] {
			if !suppressed[y] && cands[x].box.Intersects(cands[y].box) {
				suppressed[y] = true
			}
		}
	}

	out := cands[:0]
	for i, c := range cands {
		if !suppressed[i] {
			out = append(out, c)
		}
	}
	return out
}

// preview keeps the head and tail of a token for display, masking the
// middle so full values never leave the analysis result unmasked.
func preview(token string) string {
	runes := []rune(token)
	if len(runes) <= 6 {
		return token
	}
	return string(runes[:3]) + "…" + string(runes[len(runes)-2:])
}

package detect

import "fmt"

// DetectionKind is the closed set of content categories the classifier
// can report.
type DetectionKind string

const (
	KindFace     DetectionKind = "FACE"
	KindEmail    DetectionKind = "EMAIL"
	KindPhone    DetectionKind = "PHONE"
	KindPAN      DetectionKind = "PAN"
	KindIBAN     DetectionKind = "IBAN"
	KindSSN      DetectionKind = "SSN"
	KindPassport DetectionKind = "PASSPORT"
	KindJWT      DetectionKind = "JWT"
	KindAPIKey   DetectionKind = "API_KEY"
	KindBarcode  DetectionKind = "BARCODE"
	KindName     DetectionKind = "NAME"
	KindAddress  DetectionKind = "ADDRESS"
	KindOther    DetectionKind = "OTHER"
)

// AllKinds lists every detection kind in declaration order.
var AllKinds = []DetectionKind{
	KindFace, KindEmail, KindPhone, KindPAN, KindIBAN, KindSSN,
	KindPassport, KindJWT, KindAPIKey, KindBarcode, KindName,
	KindAddress, KindOther,
}

// IsValid reports whether k is a member of the closed kind set.
func (k DetectionKind) IsValid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Box is a page-relative bounding region. All coordinates are normalized
// to [0,1]; Page is the zero-based page index.
type Box struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Page int     `json:"page"`
}

// Clamp returns a copy of the box constrained to the unit square, so that
// x+w <= 1 and y+h <= 1 always hold.
func (b Box) Clamp() Box {
	b.X = clamp01(b.X)
	b.Y = clamp01(b.Y)
	b.W = clamp01(b.W)
	b.H = clamp01(b.H)
	if b.X+b.W > 1 {
		b.W = 1 - b.X
	}
	if b.Y+b.H > 1 {
		b.H = 1 - b.Y
	}
	return b
}

// Area returns the normalized area of the box.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Intersects reports whether b and other overlap on the same page.
func (b Box) Intersects(other Box) bool {
	if b.Page != other.Page {
		return false
	}
	return b.X < other.X+other.W && other.X < b.X+b.W &&
		b.Y < other.Y+other.H && other.Y < b.Y+b.H
}

// Union returns the smallest box covering both b and other.
func (b Box) Union(other Box) Box {
	x0 := min(b.X, other.X)
	y0 := min(b.Y, other.Y)
	x1 := max(b.X+b.W, other.X+other.W)
	y1 := max(b.Y+b.H, other.Y+other.H)
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Page: b.Page}.Clamp()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Detection is one classified, confidence-scored finding. Detections are
// created only by the Assembler and are immutable afterwards; later stages
// reference them by ID.
type Detection struct {
	ID         string        `json:"id"`
	Kind       DetectionKind `json:"kind"`
	Box        Box           `json:"box"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason"`
	Preview    string        `json:"preview,omitempty"`
}

// AnalyzeResult is the output of one file's analysis pass.
type AnalyzeResult struct {
	File       string      `json:"file"`
	PageCount  int         `json:"page_count"`
	Detections []Detection `json:"detections"`
}

// KindCounts returns the number of detections per kind, keyed by the kind's
// string form. Used for logging and dashboard events.
func (r *AnalyzeResult) KindCounts() map[string]int {
	counts := make(map[string]int)
	for _, d := range r.Detections {
		counts[string(d.Kind)]++
	}
	return counts
}

// Find returns the detection with the given id, or false.
func (r *AnalyzeResult) Find(id string) (Detection, bool) {
	for _, d := range r.Detections {
		if d.ID == id {
			return d, true
		}
	}
	return Detection{}, false
}

// OCRWord is one recognized token with its pixel-space bounding box, as
// delivered by the OCR collaborator.
type OCRWord struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
}

// OCRPage is the OCR collaborator's output for one page.
type OCRPage struct {
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Words  []OCRWord `json:"words"`
}

// Validate rejects malformed OCR payloads before they enter the pipeline.
func (p *OCRPage) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("ocr page has non-positive dimensions %gx%g", p.Width, p.Height)
	}
	for i, w := range p.Words {
		if w.Confidence < 0 || w.Confidence > 1 {
			return fmt.Errorf("ocr word %d has confidence %g outside [0,1]", i, w.Confidence)
		}
		if w.X1 < w.X0 || w.Y1 < w.Y0 {
			return fmt.Errorf("ocr word %d has inverted bbox", i)
		}
	}
	return nil
}

// AnalysisError reports a per-file analysis failure. Bulk runs capture it
// and continue with sibling files.
type AnalysisError struct {
	File string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed for %s: %v", e.File, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

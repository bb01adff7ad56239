package detect

import "testing"

func TestScoreRange(t *testing.T) {
	// Arbitrary input must always land in [0,1]
	cases := []struct {
		kind DetectionKind
		tok  string
		ocr  float64
	}{
		{KindPAN, "4532015112830366", 0.0},
		{KindPAN, "4532015112830366", 1.0},
		{KindName, "", 0.5},
		{KindName, "Invoice", -5.0},
		{KindOther, "x", 42.0},
		{DetectionKind("BOGUS"), "", -1.0},
	}
	for _, tc := range cases {
		score := Score(tc.kind, tc.tok, tc.ocr)
		if score < 0 || score > 1 {
			t.Errorf("Score(%s, %q, %g) = %g outside [0,1]", tc.kind, tc.tok, tc.ocr, score)
		}
	}
}

func TestScoreOrdering(t *testing.T) {
	// For equal OCR confidence a checksummed kind never scores below a
	// heuristic kind.
	for _, ocr := range []float64{0.0, 0.3, 0.7, 1.0} {
		pan := Score(KindPAN, "4532015112830366", ocr)
		name := Score(KindName, "Smith", ocr)
		if pan < name {
			t.Errorf("ocr=%g: PAN score %g below NAME score %g", ocr, pan, name)
		}
	}
}

func TestScoreBlending(t *testing.T) {
	// Confidence grows with OCR confidence for a fixed kind
	low := Score(KindEmail, "a@b.co", 0.1)
	high := Score(KindEmail, "a@b.co", 0.9)
	if high <= low {
		t.Errorf("score must grow with OCR confidence: %g <= %g", high, low)
	}

	// A cleanly recognized checksummed token clears the review bar
	if got := Score(KindPAN, "4532015112830366", 0.92); got < 0.8 {
		t.Errorf("high-quality PAN scored %g, want >= 0.8", got)
	}
}

func TestScoreCommonWordPenalty(t *testing.T) {
	penalized := Score(KindName, "Invoice", 0.9)
	clean := Score(KindName, "Smith", 0.9)
	if penalized >= clean {
		t.Errorf("common word should score lower: %g >= %g", penalized, clean)
	}

	// The penalty applies to NAME only
	if Score(KindAddress, "Invoice", 0.9) != Score(KindAddress, "Smith", 0.9) {
		t.Error("penalty must not apply outside NAME")
	}
}

func TestScoreCandidateCustomCertainty(t *testing.T) {
	cand := Candidate{Kind: KindOther, Certainty: 0.9}
	got := ScoreCandidate(cand, "EMP-1234", 0.5)
	want := 0.7*0.9 + 0.3*0.5
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("got %g, want %g", got, want)
	}
}

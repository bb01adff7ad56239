package detect

// Confidence blending weights. These are a tuning surface; the contract is
// only that a checksummed kind never scores below a heuristic kind for
// equal OCR confidence, which holds for any certaintyWeight > 0.
const (
	certaintyWeight = 0.7
	ocrWeight       = 0.3

	// commonWordPenalty lowers, but never hard-rejects, capitalized
	// dictionary words classified as NAME.
	commonWordPenalty = 0.25
)

// Score combines a kind's base certainty with upstream OCR confidence into
// a single confidence in [0,1]. Arbitrary input is safe: out-of-range OCR
// confidence is clamped, and the result is clamped again after penalties.
func Score(kind DetectionKind, token string, ocrConfidence float64) float64 {
	return ScoreCandidate(Candidate{Kind: kind, Certainty: BaseCertainty(kind)}, token, ocrConfidence)
}

// ScoreCandidate scores a classifier candidate, honoring per-candidate
// certainty (custom patterns carry their own).
func ScoreCandidate(cand Candidate, token string, ocrConfidence float64) float64 {
	score := certaintyWeight*clamp01(cand.Certainty) + ocrWeight*clamp01(ocrConfidence)

	if cand.Kind == KindName && IsCommonWord(token) {
		score -= commonWordPenalty
	}

	return clamp01(score)
}

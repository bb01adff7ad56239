package detect

import (
	"fmt"
	"regexp"
)

// Candidate is a classification result before scoring: the kind, the
// classifier's own certainty in the match, and a human-readable reason.
type Candidate struct {
	Kind      DetectionKind
	Certainty float64
	Reason    string
}

// CompiledPattern is a user-supplied custom rule with its regex compiled
// once at construction. Custom patterns run after the built-in validators
// and override their result for matching tokens.
type CompiledPattern struct {
	ID            string
	Kind          DetectionKind
	Confidence    float64
	CaseSensitive bool
	re            *regexp.Regexp
}

// CompilePattern validates and compiles one custom pattern. A pattern that
// does not compile, an unknown kind, or an out-of-range confidence is
// rejected here, before the pattern can reach the classifier.
func CompilePattern(id, pattern string, kind DetectionKind, confidence float64, caseSensitive bool) (CompiledPattern, error) {
	if !kind.IsValid() {
		return CompiledPattern{}, fmt.Errorf("custom pattern %q: unknown kind %q", id, kind)
	}
	if confidence < 0 || confidence > 1 {
		return CompiledPattern{}, fmt.Errorf("custom pattern %q: confidence %g outside [0,1]", id, confidence)
	}
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return CompiledPattern{}, fmt.Errorf("custom pattern %q: %w", id, err)
	}
	return CompiledPattern{
		ID:            id,
		Kind:          kind,
		Confidence:    confidence,
		CaseSensitive: caseSensitive,
		re:            re,
	}, nil
}

// Matches reports whether the pattern matches the whole token.
func (p CompiledPattern) Matches(token string) bool {
	loc := p.re.FindStringIndex(token)
	return loc != nil && loc[0] == 0 && loc[1] == len(token)
}

// Certainty classes for the built-in validators. Checksummed kinds always
// carry the highest class so the scorer's ordering invariant holds.
const (
	certaintyChecksum   = 0.95 // PAN, IBAN, SSN
	certaintyStructural = 0.85 // JWT, API_KEY, PASSPORT
	certaintyPattern    = 0.75 // EMAIL, PHONE
	certaintyHeuristic  = 0.55 // NAME, ADDRESS
)

// BaseCertainty returns the classifier certainty class for a kind.
func BaseCertainty(kind DetectionKind) float64 {
	switch kind {
	case KindPAN, KindIBAN, KindSSN:
		return certaintyChecksum
	case KindJWT, KindAPIKey, KindPassport, KindFace, KindBarcode:
		return certaintyStructural
	case KindEmail, KindPhone:
		return certaintyPattern
	default:
		return certaintyHeuristic
	}
}

// Classifier selects the best-matching kind for a single token. It is
// stateless after construction and safe for concurrent use.
type Classifier struct {
	patterns []CompiledPattern
}

// NewClassifier creates a classifier with the given custom patterns
// (already compiled). A nil slice means built-ins only.
func NewClassifier(patterns []CompiledPattern) *Classifier {
	return &Classifier{patterns: patterns}
}

// Classify tries the built-in validators in precedence order - checksummed
// and structural kinds before heuristic ones - so a 16-digit token that
// vaguely resembles a phone number still reports as PAN when Luhn-valid.
// Custom patterns run last and override the built-in result. Returns false
// when nothing matches; malformed input never panics.
func (c *Classifier) Classify(token string) (Candidate, bool) {
	cand, matched := classifyBuiltin(token)

	for _, p := range c.patterns {
		if p.Matches(token) {
			cand = Candidate{
				Kind:      p.Kind,
				Certainty: p.Confidence,
				Reason:    fmt.Sprintf("custom pattern %s", p.ID),
			}
			matched = true
			break
		}
	}

	return cand, matched
}

func classifyBuiltin(token string) (Candidate, bool) {
	if token == "" {
		return Candidate{}, false
	}

	switch {
	case IsValidPAN(token):
		return Candidate{KindPAN, certaintyChecksum, "Luhn checksum valid, 13-19 digits"}, true
	case IsValidIBAN(token):
		return Candidate{KindIBAN, certaintyChecksum, "MOD-97 checksum valid"}, true
	case IsValidSSN(token):
		return Candidate{KindSSN, certaintyChecksum, "SSN format with valid area/group/serial"}, true
	case IsValidJWT(token):
		return Candidate{KindJWT, certaintyStructural, "three Base64URL segments"}, true
	}

	if family, ok := MatchAPIKeyFamily(token); ok {
		return Candidate{KindAPIKey, certaintyStructural, fmt.Sprintf("matches %s key format", family)}, true
	}

	switch {
	case IsValidEmail(token):
		return Candidate{KindEmail, certaintyPattern, "email address format"}, true
	case IsValidPhone(token):
		return Candidate{KindPhone, certaintyPattern, "phone number format"}, true
	case IsValidPassport(token):
		return Candidate{KindPassport, certaintyStructural, "US passport number format"}, true
	case LooksLikeAddressPart(token):
		return Candidate{KindAddress, certaintyHeuristic, "address component heuristic"}, true
	case LooksLikeName(token):
		return Candidate{KindName, certaintyHeuristic, "capitalized name heuristic"}, true
	}

	return Candidate{}, false
}

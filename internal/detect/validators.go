package detect

import (
	"math/big"
	"regexp"
	"strings"
	"unicode"
)

// Validators are stateless pure functions. Every pattern below is compiled
// once at package init and holds no match state between calls.

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern    = regexp.MustCompile(`^\+?1?[-. (]*\d{3}[-. )]*\d{3}[-. ]*\d{4}$`)
	ssnPattern      = regexp.MustCompile(`^(\d{3})-(\d{2})-(\d{4})$`)
	passportPattern = regexp.MustCompile(`^(?:\d{9}|[A-Za-z]\d{8})$`)
	jwtSegment      = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	ibanShape       = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Za-z0-9]{1,30}$`)
	zipShape        = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
	panSeparators   = strings.NewReplacer(" ", "", "-", "")
)

// jwtMinLength guards against short false positives like "a.b.c".
const jwtMinLength = 36

// IsValidEmail reports whether the token is a syntactically valid email
// address.
func IsValidEmail(token string) bool {
	return emailPattern.MatchString(token)
}

// IsValidPhone reports whether the token looks like a NANP phone number.
func IsValidPhone(token string) bool {
	digits := 0
	for _, r := range token {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < 10 || digits > 11 {
		return false
	}
	return phonePattern.MatchString(token)
}

// IsValidPAN reports whether the token is a Luhn-valid payment card number
// of 13-19 digits. Separators (spaces, dashes) are stripped first.
func IsValidPAN(token string) bool {
	stripped := panSeparators.Replace(token)
	if len(stripped) < 13 || len(stripped) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(stripped) - 1; i >= 0; i-- {
		c := stripped[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// IsValidIBAN reports whether the token passes the MOD-97 check: the first
// four characters move to the end, letters become two-digit numbers
// (A=10..Z=35), and the resulting decimal integer must be ≡ 1 (mod 97).
func IsValidIBAN(token string) bool {
	compact := strings.ToUpper(strings.ReplaceAll(token, " ", ""))
	if len(compact) < 15 || len(compact) > 34 {
		return false
	}
	if !ibanShape.MatchString(compact) {
		return false
	}

	rearranged := compact[4:] + compact[:4]
	var sb strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteString(big.NewInt(int64(r-'A') + 10).String())
		default:
			return false
		}
	}

	n, ok := new(big.Int).SetString(sb.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// IsValidSSN reports whether the token is a well-formed NNN-NN-NNNN social
// security number. Area 000, 666, and 900-999 are invalid, as are group 00
// and serial 0000.
func IsValidSSN(token string) bool {
	m := ssnPattern.FindStringSubmatch(token)
	if m == nil {
		return false
	}
	area, group, serial := m[1], m[2], m[3]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" {
		return false
	}
	if serial == "0000" {
		return false
	}
	return true
}

// IsValidPassport reports whether the token matches the US passport number
// shape: 9 digits, or one letter followed by 8 digits.
func IsValidPassport(token string) bool {
	return passportPattern.MatchString(token)
}

// IsValidJWT reports whether the token has the three-segment Base64URL
// shape of a JSON Web Token. A minimum total length filters out trivial
// dotted strings.
func IsValidJWT(token string) bool {
	if len(token) < jwtMinLength {
		return false
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return false
	}
	for _, seg := range segments {
		if seg == "" || !jwtSegment.MatchString(seg) {
			return false
		}
	}
	return true
}

// apiKeyFamily is one known fixed-prefix secret format.
type apiKeyFamily struct {
	Name    string
	Pattern *regexp.Regexp
}

// apiKeyFamilies covers the common provider key shapes. Patterns are
// anchored; the classifier feeds whole tokens, not substrings.
var apiKeyFamilies = []apiKeyFamily{
	{"aws_access_key", regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`)},
	{"openai_key", regexp.MustCompile(`^sk-[A-Za-z0-9_\-]{32,}$`)},
	{"github_token", regexp.MustCompile(`^gh[pousr]_[A-Za-z0-9]{36,}$`)},
	{"gitlab_token", regexp.MustCompile(`^glpat-[A-Za-z0-9\-]{20,}$`)},
	{"stripe_key", regexp.MustCompile(`^[sr]k_(?:live|test)_[A-Za-z0-9]{24,}$`)},
	{"slack_token", regexp.MustCompile(`^xox[baprs]-[A-Za-z0-9\-]{10,}$`)},
	{"google_api_key", regexp.MustCompile(`^AIza[0-9A-Za-z_\-]{35}$`)},
}

// MatchAPIKeyFamily returns the name of the first API-key family the token
// matches, or false.
func MatchAPIKeyFamily(token string) (string, bool) {
	for _, fam := range apiKeyFamilies {
		if fam.Pattern.MatchString(token) {
			return fam.Name, true
		}
	}
	return "", false
}

// LooksLikeName is the heuristic NAME check: capitalized alphabetic words,
// not in the common-word stoplist. Explicitly lower confidence than the
// checksummed validators.
func LooksLikeName(token string) bool {
	words := strings.Fields(token)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		if !isCapitalizedAlpha(w) {
			return false
		}
	}
	return true
}

// IsCommonWord reports whether the (single-word) token is in the dictionary
// stoplist used for NAME false-positive suppression.
func IsCommonWord(token string) bool {
	_, ok := commonWords[strings.ToLower(token)]
	return ok
}

func isCapitalizedAlpha(w string) bool {
	runes := []rune(w)
	if len(runes) < 2 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}

// LooksLikeAddressPart is the heuristic ADDRESS check for a single token:
// street-suffix words, directionals, state abbreviations, and ZIP-shaped
// numbers all count as address cues.
func LooksLikeAddressPart(token string) bool {
	t := strings.TrimRight(strings.ToLower(token), ".,")
	if _, ok := streetSuffixes[t]; ok {
		return true
	}
	if _, ok := directionals[t]; ok {
		return true
	}
	if _, ok := stateAbbrevs[strings.ToUpper(strings.TrimRight(token, ".,"))]; ok {
		return true
	}
	return zipShape.MatchString(token)
}

var streetSuffixes = map[string]struct{}{
	"street": {}, "st": {}, "avenue": {}, "ave": {}, "boulevard": {}, "blvd": {},
	"drive": {}, "dr": {}, "lane": {}, "ln": {}, "road": {}, "rd": {},
	"court": {}, "ct": {}, "circle": {}, "cir": {}, "place": {}, "pl": {},
	"way": {}, "terrace": {}, "ter": {}, "parkway": {}, "pkwy": {},
	"highway": {}, "hwy": {}, "suite": {}, "ste": {}, "apt": {}, "unit": {},
}

var directionals = map[string]struct{}{
	"n": {}, "s": {}, "e": {}, "w": {}, "ne": {}, "nw": {}, "se": {}, "sw": {},
	"north": {}, "south": {}, "east": {}, "west": {},
}

var stateAbbrevs = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {},
	"DE": {}, "FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {}, "IN": {},
	"IA": {}, "KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {}, "MA": {},
	"MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {}, "NE": {}, "NV": {},
	"NH": {}, "NJ": {}, "NM": {}, "NY": {}, "NC": {}, "ND": {}, "OH": {},
	"OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {}, "SD": {}, "TN": {},
	"TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {}, "WI": {},
	"WY": {}, "DC": {},
}

// commonWords suppresses capitalized dictionary words that would otherwise
// classify as NAME at sentence starts.
var commonWords = map[string]struct{}{
	"the": {}, "this": {}, "that": {}, "these": {}, "those": {}, "there": {},
	"then": {}, "when": {}, "where": {}, "which": {}, "while": {}, "with": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "have": {}, "has": {},
	"here": {}, "please": {}, "thanks": {}, "thank": {}, "hello": {}, "dear": {},
	"invoice": {}, "total": {}, "amount": {}, "date": {}, "page": {}, "from": {},
	"subject": {}, "regards": {}, "sincerely": {}, "account": {}, "number": {},
	"name": {}, "address": {}, "phone": {}, "email": {}, "january": {},
	"february": {}, "march": {}, "april": {}, "may": {}, "june": {}, "july": {},
	"august": {}, "september": {}, "october": {}, "november": {}, "december": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
	"saturday": {}, "sunday": {},
}

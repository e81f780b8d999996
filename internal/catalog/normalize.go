package catalog

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legacyCodes expands the two-letter store codes supervisors type into the
// manual location field. The table is fixed: codes are retired, never added.
var legacyCodes = map[string]string{
	"sc": "santa catarina",
	"lh": "la huasteca",
	"gc": "garcia",
}

// noiseTokens carry no location information and are dropped.
var noiseTokens = map[string]bool{
	"sucursal": true,
	"suc":      true,
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// minNeedleRunes is the shortest normalized string allowed to match by containment.
const minNeedleRunes = 3

// NormalizeName standardizes a store name or free-text location for matching by:
//  1. Stripping diacritics (NFD, drop combining marks)
//  2. Lower-casing
//  3. Replacing punctuation with spaces
//  4. Expanding legacy two-letter codes (SC, LH, GC)
//  5. Dropping noise tokens ("sucursal") and collapsing whitespace
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = strings.ToLower(stripDiacritics(s))
	s = nonAlnumRe.ReplaceAllString(s, " ")

	tokens := strings.Fields(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if noiseTokens[tok] {
			continue
		}
		if exp, ok := legacyCodes[tok]; ok {
			out = append(out, exp)
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// TextScore scores two normalized strings:
//   - 1.0 when equal
//   - len(shorter)/len(longer) when the shorter appears in the longer on token boundaries
//   - 0 otherwise, or when the shorter has fewer than three runes
func TextScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	if utf8.RuneCountInString(short) < minNeedleRunes {
		return 0
	}
	if !strings.Contains(" "+long+" ", " "+short+" ") {
		return 0
	}
	return float64(utf8.RuneCountInString(short)) / float64(utf8.RuneCountInString(long))
}

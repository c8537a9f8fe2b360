// Package dedupe normalizes candidate entity records into fingerprints
// and classifies them as NEW, EXISTING, or AMBIGUOUS against the entity
// store (spec.md §4.A fingerprint rule, §4.C duplicate detector).
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var streetSuffixCanon = map[string]string{
	"street": "st", "st.": "st",
	"avenue": "ave", "ave.": "ave",
	"boulevard": "blvd", "blvd.": "blvd",
	"drive": "dr", "dr.": "dr",
	"lane": "ln", "ln.": "ln",
	"court": "ct", "ct.": "ct",
	"circle": "cir", "cir.": "cir",
	"place": "pl", "pl.": "pl",
	"road": "rd", "rd.": "rd",
	"parkway": "pkwy", "pkwy.": "pkwy",
	"terrace": "ter", "ter.": "ter",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize canonicalizes raw per the fingerprint rule in spec.md §4.A:
// lowercase, diacritics stripped, whitespace collapsed, street suffixes
// canonicalized.
func Normalize(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	stripped := stripDiacritics(lower)

	words := strings.Fields(stripped)
	for i, w := range words {
		if canon, ok := streetSuffixCanon[w]; ok {
			words[i] = canon
		}
	}
	collapsed := whitespaceRe.ReplaceAllString(strings.Join(words, " "), " ")
	return strings.TrimSpace(collapsed)
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// Fingerprint hashes the canonicalized, pipe-joined parts with SHA-256,
// matching the community/builder rule sha(name|city|state) and the
// property rule sha(address1|postal_code).
func Fingerprint(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = Normalize(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

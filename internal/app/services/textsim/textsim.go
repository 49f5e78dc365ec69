// Package textsim provides the case-insensitive sequence-ratio similarity
// used by the PO matcher, with a Levenshtein
// fallback for short strings where sequence-ratio tends to overstate
// similarity (it favors one long shared run over many small edits).
package textsim

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
)

// levenshteinFallbackMaxLen is the length below which Ratio blends in the
// normalized Levenshtein distance rather than relying on sequence-ratio
// alone.
const levenshteinFallbackMaxLen = 12

// Ratio returns a case-insensitive similarity in [0,1]: 1.0 for identical
// strings (after folding case), 0.0 for nothing in common.
func Ratio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	seqRatio := sequenceRatio(a, b)
	if len(a) > levenshteinFallbackMaxLen && len(b) > levenshteinFallbackMaxLen {
		return seqRatio
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	levRatio := 1.0 - float64(dist)/float64(maxLen)

	if levRatio < seqRatio {
		return levRatio
	}
	return seqRatio
}

func sequenceRatio(a, b string) float64 {
	matcher := difflib.NewMatcher(splitChars(a), splitChars(b))
	return matcher.Ratio()
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

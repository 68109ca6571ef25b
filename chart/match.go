package chart

import "strings"

// SimilarityCutoff is the minimum similarity (0-1) for a fuzzy column match
// to count as resolved. Candidates below it only surface as suggestions.
const SimilarityCutoff = 0.7

// MatchColumn resolves a model- or user-supplied column name against the
// dataset's real columns. Matching is two-phase: a normalized exact match
// (case-, space-, and underscore-insensitive) wins outright; otherwise the
// highest-similarity column at or above SimilarityCutoff wins. Ties keep the
// column appearing first in dataset order. ok is false when nothing matches.
func MatchColumn(candidate string, columns []string) (string, bool) {
	if candidate == "" || len(columns) == 0 {
		return "", false
	}

	norm := normalizeName(candidate)
	for _, col := range columns {
		if normalizeName(col) == norm {
			return col, true
		}
	}

	best, score := closestColumn(candidate, columns)
	if score >= SimilarityCutoff {
		return best, true
	}
	return "", false
}

// closestColumn returns the most similar column and its score, with no
// cutoff applied. Ties keep the earliest column. Used both by MatchColumn
// and for "did you mean" suggestions on resolution failure.
func closestColumn(candidate string, columns []string) (string, float64) {
	var best string
	var bestScore float64
	for _, col := range columns {
		if s := similarity(candidate, col); s > bestScore {
			best, bestScore = col, s
		}
	}
	return best, bestScore
}

// normalizeName lowercases a column name and strips spaces and underscores.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "_", "")
}

// similarity computes a 0-1 ratio between two strings: twice the number of
// matched characters over the total length, with matches found greedily via
// longest common substrings (the classic sequence-matcher ratio).
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 2 * float64(matchedChars(a, b)) / float64(len(a)+len(b))
}

// matchedChars counts characters covered by recursively taking the longest
// common substring and recursing on the pieces to its left and right.
func matchedChars(a, b string) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchedChars(a[:ai], b[:bi]) +
		matchedChars(a[ai+size:], b[bi+size:])
}

// longestMatch finds the longest common substring of a and b. Ties prefer
// the earliest start in a, then in b, keeping the whole match deterministic.
func longestMatch(a, b string) (ai, bi, size int) {
	for i := 0; i < len(a); i++ {
		if len(a)-i <= size {
			break
		}
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > size {
				ai, bi, size = i, j, k
			}
		}
	}
	return
}

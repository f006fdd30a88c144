package intake

import (
	"regexp"
	"strings"
)

var (
	politenessPrefix = regexp.MustCompile(`^(can you|could you|please|would you)\s+`)
	trailingPunct    = regexp.MustCompile(`[?.!]+$`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

// NormalizeQuestion lowers case, strips leading politeness phrases and
// trailing punctuation, and collapses whitespace. Both the de-duplication
// guard and the category classifier operate on normalized text.
func NormalizeQuestion(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = politenessPrefix.ReplaceAllString(t, "")
	t = trailingPunct.ReplaceAllString(t, "")
	t = multiSpace.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

func containsKeyword(normalized, keyword string) bool {
	return strings.Contains(normalized, keyword)
}

// SimilarityRatio computes 2*LCS/(len(a)+len(b)) over bytes of the two
// strings, the same shape of score as difflib's SequenceMatcher ratio:
// 1.0 for identical strings, 0.0 for fully disjoint ones.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	// Single-row LCS to keep allocation proportional to the shorter string.
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := 1; j <= len(b); j++ {
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				curr[i] = prev[i-1] + 1
			} else if prev[i] >= curr[i-1] {
				curr[i] = prev[i]
			} else {
				curr[i] = curr[i-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(a)]
	return 2.0 * float64(lcs) / float64(len(a)+len(b))
}

// IsDuplicateQuestion reports whether candidate matches any prior question by
// normalized equality or similarity at or above threshold.
func IsDuplicateQuestion(candidate string, history []string, threshold float64) bool {
	cand := NormalizeQuestion(candidate)
	for _, h := range history {
		hn := NormalizeQuestion(h)
		if cand == hn {
			return true
		}
		if SimilarityRatio(cand, hn) >= threshold {
			return true
		}
	}
	return false
}

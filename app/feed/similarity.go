package feed

import "math"

// Ratio scores two strings on a 0-100 scale using the normalized indel
// distance: 100 * 2 * LCS / (len(a) + len(b)), rounded. Empty input scores 0
// so that titles made only of punctuation never match each other.
func Ratio(a, b string) int {
	return ratioRunes([]rune(a), []rune(b))
}

func ratioRunes(a, b []rune) int {
	total := len(a) + len(b)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	lcs := longestCommonSubsequence(a, b)
	return int(math.Round(100 * float64(2*lcs) / float64(total)))
}

func longestCommonSubsequence(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

package reconcile

import "sort"

// Candidate is one ranked replacement suggestion for an incumbent name.
type Candidate struct {
	AdapterID string
	Score     float64
}

// Confidence thresholds for candidate classification. A single candidate
// at or above highConfidence auto-confirms; anything at or above
// plausible keeps the mapping pending for operator review.
const (
	highConfidence = 0.90
	plausible      = 0.70
)

// RankCandidates scores every catalog adapter against the incumbent name
// and returns the plausible ones, best first. Pure function: no
// reflection, no dispatch, deterministic order (score desc, then id asc
// for equal scores).
func RankCandidates(name string, catalog []string) []Candidate {
	normalized := Normalize(name)
	if normalized == "" {
		return nil
	}

	var out []Candidate
	for _, adapter := range catalog {
		score := similarity(normalized, Normalize(adapter))
		if score >= plausible {
			out = append(out, Candidate{AdapterID: adapter, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AdapterID < out[j].AdapterID
	})
	return out
}

// similarity is 1 - levenshtein/maxlen over normalized names, in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

package feed

import "math"

// Selector decides which of two items describing the same story is kept.
type Selector struct {
	rank map[string]int
}

func NewSelector(priorityOrder []string) *Selector {
	rank := make(map[string]int, len(priorityOrder))
	for i, source := range priorityOrder {
		if _, seen := rank[source]; !seen {
			rank[source] = i
		}
	}
	return &Selector{rank: rank}
}

// Rank returns the position of source in the priority order. Unlisted
// sources rank after every listed one.
func (s *Selector) Rank(source string) int {
	if r, ok := s.rank[source]; ok {
		return r
	}
	return math.MaxInt
}

// Best compares by source priority, then image presence, then recency.
// A zero publish date sorts before every real one. Full ties go to b.
func (s *Selector) Best(a, b *WorkingItem) *WorkingItem {
	ra, rb := s.Rank(a.Source), s.Rank(b.Source)
	if ra != rb {
		if ra < rb {
			return a
		}
		return b
	}

	hasImageA, hasImageB := a.Image != "", b.Image != ""
	if hasImageA != hasImageB {
		if hasImageA {
			return a
		}
		return b
	}

	if a.PublishedAt.After(b.PublishedAt) {
		return a
	}
	return b
}

package pattern

import "github.com/avvvet/bingo-sync/internal/grid"

// Called is the set of drawn numbers.
type Called map[int]struct{}

func NewCalled(numbers []int) Called {
	c := make(Called, len(numbers))
	for _, n := range numbers {
		c[n] = struct{}{}
	}
	return c
}

func (c Called) Has(n int) bool {
	_, ok := c[n]
	return ok
}

// Matches reports whether every cell of p is either free or called.
func Matches(g grid.Grid, called Called, p Pattern) bool {
	cells := p.Cells()
	if len(cells) == 0 {
		return false
	}
	for _, i := range cells {
		if g.IsFree(i) {
			continue
		}
		if !called.Has(g.At(i)) {
			return false
		}
	}
	return true
}

// Engine evaluates patterns once enough numbers have been drawn. MinDrawn is a noise
// filter only: no pattern can complete on fewer than four calls anyway.
type Engine struct {
	MinDrawn int
}

// Candidate is one card taking part in a scan.
type Candidate struct {
	ID   string
	Grid grid.Grid
}

type Match struct {
	Candidate Candidate
	Pattern   Pattern
}

// FirstMatch returns the first pattern, in the given order, that the card satisfies.
func (e Engine) FirstMatch(g grid.Grid, drawn []int, patterns []Pattern) (Pattern, bool) {
	if len(drawn) < e.MinDrawn {
		return Pattern{}, false
	}
	called := NewCalled(drawn)
	return firstMatch(g, called, patterns)
}

func firstMatch(g grid.Grid, called Called, patterns []Pattern) (Pattern, bool) {
	for _, p := range patterns {
		if Matches(g, called, p) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Scan checks every candidate and reports at most one match per candidate.
func (e Engine) Scan(candidates []Candidate, drawn []int, patterns []Pattern) []Match {
	if len(drawn) < e.MinDrawn || len(candidates) == 0 {
		return nil
	}
	called := NewCalled(drawn)

	var matches []Match
	for _, c := range candidates {
		if p, ok := firstMatch(c.Grid, called, patterns); ok {
			matches = append(matches, Match{Candidate: c, Pattern: p})
		}
	}
	return matches
}

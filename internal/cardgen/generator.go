package cardgen

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/avvvet/bingo-sync/internal/grid"
)

var ErrExhausted = errors.New("card generator: attempts exhausted")

// DefaultMaxAttempts bounds rejection sampling per cell.
const DefaultMaxAttempts = 64

// Range is an inclusive value range for one column.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r Range) size() int { return r.Max - r.Min + 1 }

func (r Range) contains(n int) bool { return n >= r.Min && n <= r.Max }

// StandardRanges is the 75-ball layout: B 1-15, I 16-30, N 31-45, G 46-60, O 61-75.
var StandardRanges = [grid.Size]Range{
	{Min: 1, Max: 15},
	{Min: 16, Max: 30},
	{Min: 31, Max: 45},
	{Min: 46, Max: 60},
	{Min: 61, Max: 75},
}

// Card is a generated card with its catalog id.
type Card struct {
	ID   int
	Grid grid.Grid
}

type Generator struct {
	rnd         *rand.Rand
	ranges      [grid.Size]Range
	maxAttempts int
}

type Option func(*Generator)

func WithRanges(ranges [grid.Size]Range) Option {
	return func(g *Generator) { g.ranges = ranges }
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGenerator returns a generator drawing from rnd. Pass a seeded source for
// repeatable card sets.
func NewGenerator(rnd *rand.Rand, opts ...Option) *Generator {
	g := &Generator{
		rnd:         rnd,
		ranges:      StandardRanges,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Seeded is a convenience for a deterministic generator.
func Seeded(seed uint64, opts ...Option) *Generator {
	return NewGenerator(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), opts...)
}

// Card builds one grid. Each column picks distinct values from its range; the
// center cell is free.
func (g *Generator) Card() (grid.Grid, error) {
	var out grid.Grid

	for col, r := range g.ranges {
		need := grid.Size
		if col == grid.Size/2 {
			need--
		}
		if r.Min < 1 || r.size() < need {
			return out, fmt.Errorf("column %d range %d-%d cannot hold %d values", col, r.Min, r.Max, need)
		}

		chosen := make(map[int]bool, grid.Size)
		for row := 0; row < grid.Size; row++ {
			if row*grid.Size+col == grid.Center {
				out[row][col] = grid.Free
				continue
			}
			v, err := g.pick(r, chosen)
			if err != nil {
				return out, fmt.Errorf("column %d row %d: %w", col, row, err)
			}
			chosen[v] = true
			out[row][col] = v
		}
	}
	return out, nil
}

func (g *Generator) pick(r Range, chosen map[int]bool) (int, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		v := r.Min + g.rnd.IntN(r.size())
		if !chosen[v] {
			return v, nil
		}
	}
	return 0, ErrExhausted
}

// Cards generates n cards numbered 1..n.
func (g *Generator) Cards(n int) ([]Card, error) {
	out := make([]Card, 0, n)
	for id := 1; id <= n; id++ {
		c, err := g.Card()
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", id, err)
		}
		out = append(out, Card{ID: id, Grid: c})
	}
	return out, nil
}

// Validate checks a card loaded from elsewhere against the column ranges.
func Validate(c grid.Grid, ranges [grid.Size]Range) error {
	seen := make(map[int]bool, grid.Cells)
	for i := 0; i < grid.Cells; i++ {
		v := c.At(i)
		if i == grid.Center {
			if v != grid.Free {
				return fmt.Errorf("center cell must be %s, got %d", grid.FreeLabel, v)
			}
			continue
		}
		if v == grid.Free {
			return fmt.Errorf("cell %d is free outside the center", i)
		}
		col := i % grid.Size
		if !ranges[col].contains(v) {
			return fmt.Errorf("cell %d value %d outside column range %d-%d", i, v, ranges[col].Min, ranges[col].Max)
		}
		if seen[v] {
			return fmt.Errorf("value %d appears twice", v)
		}
		seen[v] = true
	}
	return nil
}

package cardgen

import (
	"math/rand/v2"
	"testing"

	"github.com/avvvet/bingo-sync/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constSource uint64

func (s constSource) Uint64() uint64 { return uint64(s) }

func TestCardsAreValid(t *testing.T) {
	cards, err := Seeded(42).Cards(500)
	require.NoError(t, err)
	require.Len(t, cards, 500)

	for _, c := range cards {
		require.NoError(t, Validate(c.Grid, StandardRanges), "card %d", c.ID)
		assert.True(t, c.Grid.IsFree(grid.Center))

		for col := 0; col < grid.Size; col++ {
			seen := map[int]bool{}
			for row := 0; row < grid.Size; row++ {
				v := c.Grid[row][col]
				if v == grid.Free {
					continue
				}
				assert.False(t, seen[v], "card %d column %d repeats %d", c.ID, col, v)
				seen[v] = true
			}
		}
	}
	assert.Equal(t, 1, cards[0].ID)
	assert.Equal(t, 500, cards[499].ID)
}

func TestSeededIsDeterministic(t *testing.T) {
	a, err := Seeded(7).Cards(20)
	require.NoError(t, err)
	b, err := Seeded(7).Cards(20)
	require.NoError(t, err)
	c, err := Seeded(8).Cards(20)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBoundedAttempts(t *testing.T) {
	g := NewGenerator(rand.New(constSource(0)), WithMaxAttempts(10))

	_, err := g.Card()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestRangeTooSmall(t *testing.T) {
	ranges := StandardRanges
	ranges[0] = Range{Min: 1, Max: 3}

	_, err := Seeded(1, WithRanges(ranges)).Card()
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	good, err := Seeded(3).Card()
	require.NoError(t, err)

	dup := good
	dup[1][0] = dup[0][0]
	assert.Error(t, Validate(dup, StandardRanges))

	outOfRange := good
	outOfRange[0][0] = 70
	assert.Error(t, Validate(outOfRange, StandardRanges))

	noFree := good
	noFree[2][2] = 40
	assert.Error(t, Validate(noFree, StandardRanges))
}

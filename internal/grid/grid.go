package grid

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	Size   = 5
	Cells  = Size * Size
	Center = Cells / 2 // index 12, row 2 col 2

	// Free is the value stored in the center cell. Card values start at 1.
	Free = 0

	// FreeLabel is how the free cell is written in card files and event payloads.
	FreeLabel = "FREE"
)

// Grid is a 5x5 card, row-major.
type Grid [Size][Size]int

// At returns the value at row-major index i.
func (g Grid) At(i int) int {
	return g[i/Size][i%Size]
}

func (g Grid) IsFree(i int) bool {
	return g.At(i) == Free
}

// Flat returns the 25 values row by row.
func (g Grid) Flat() []int {
	out := make([]int, 0, Cells)
	for r := 0; r < Size; r++ {
		out = append(out, g[r][:]...)
	}
	return out
}

// FromFlat builds a grid from 25 row-major values.
func FromFlat(values []int) (Grid, error) {
	var g Grid
	if len(values) != Cells {
		return g, fmt.Errorf("expected %d values, got %d", Cells, len(values))
	}
	for i, v := range values {
		g[i/Size][i%Size] = v
	}
	return g, nil
}

func (g Grid) MarshalJSON() ([]byte, error) {
	rows := make([][]interface{}, Size)
	for r := 0; r < Size; r++ {
		rows[r] = make([]interface{}, Size)
		for c := 0; c < Size; c++ {
			if g[r][c] == Free {
				rows[r][c] = FreeLabel
				continue
			}
			rows[r][c] = g[r][c]
		}
	}
	return json.Marshal(rows)
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if len(rows) != Size {
		return fmt.Errorf("grid: expected %d rows, got %d", Size, len(rows))
	}

	var out Grid
	for r, row := range rows {
		if len(row) != Size {
			return fmt.Errorf("grid: row %d has %d cells", r, len(row))
		}
		for c, raw := range row {
			var n int
			if err := json.Unmarshal(raw, &n); err == nil {
				if n < 1 {
					return fmt.Errorf("grid: cell %d,%d has invalid value %d", r, c, n)
				}
				out[r][c] = n
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil || !strings.EqualFold(s, FreeLabel) {
				return fmt.Errorf("grid: cell %d,%d is neither a number nor %q", r, c, FreeLabel)
			}
			out[r][c] = Free
		}
	}
	*g = out
	return nil
}

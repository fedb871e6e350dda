package pattern

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/avvvet/bingo-sync/internal/grid"
)

var ErrUnknownPattern = errors.New("unknown pattern")

type Kind int

// Kinds are declared in evaluation order.
const (
	KindRow Kind = iota
	KindColumn
	KindDiagonal
	KindFourCorners
	KindLetterX
	KindLetterT
	KindLetterL
	KindCross
	KindFullCard
	KindCustom
)

const (
	DiagonalMain = 0
	DiagonalAnti = 1
)

// Pattern is a set of card cells that must all be satisfied for a win.
// Index is only meaningful for rows, columns and diagonals; Mask only for custom patterns.
type Pattern struct {
	Kind  Kind
	Index int
	Mask  [grid.Cells]bool
}

func Row(i int) Pattern     { return Pattern{Kind: KindRow, Index: i} }
func Column(i int) Pattern  { return Pattern{Kind: KindColumn, Index: i} }
func MainDiagonal() Pattern { return Pattern{Kind: KindDiagonal, Index: DiagonalMain} }
func AntiDiagonal() Pattern { return Pattern{Kind: KindDiagonal, Index: DiagonalAnti} }
func FourCorners() Pattern  { return Pattern{Kind: KindFourCorners} }
func LetterX() Pattern      { return Pattern{Kind: KindLetterX} }
func LetterT() Pattern      { return Pattern{Kind: KindLetterT} }
func LetterL() Pattern      { return Pattern{Kind: KindLetterL} }
func Cross() Pattern        { return Pattern{Kind: KindCross} }
func FullCard() Pattern     { return Pattern{Kind: KindFullCard} }

// Custom builds a pattern from an arbitrary mask. The center is always required;
// it holds the free cell so it never blocks a win.
func Custom(mask [grid.Cells]bool) Pattern {
	mask[grid.Center] = true
	return Pattern{Kind: KindCustom, Mask: mask}
}

// Lines returns every row, column and both diagonals. Used when a game enables nothing.
func Lines() []Pattern {
	out := make([]Pattern, 0, 2*grid.Size+2)
	for i := 0; i < grid.Size; i++ {
		out = append(out, Row(i))
	}
	for i := 0; i < grid.Size; i++ {
		out = append(out, Column(i))
	}
	return append(out, MainDiagonal(), AntiDiagonal())
}

// BuiltIn returns every non-custom pattern in evaluation order.
func BuiltIn() []Pattern {
	return append(Lines(), FourCorners(), LetterX(), LetterT(), LetterL(), Cross(), FullCard())
}

func row(i int) []int {
	out := make([]int, grid.Size)
	for c := 0; c < grid.Size; c++ {
		out[c] = i*grid.Size + c
	}
	return out
}

func column(i int) []int {
	out := make([]int, grid.Size)
	for r := 0; r < grid.Size; r++ {
		out[r] = r*grid.Size + i
	}
	return out
}

func diagonal(which int) []int {
	out := make([]int, grid.Size)
	for r := 0; r < grid.Size; r++ {
		if which == DiagonalMain {
			out[r] = r*grid.Size + r
		} else {
			out[r] = r*grid.Size + (grid.Size - 1 - r)
		}
	}
	return out
}

// union merges index sets, keeping them sorted and unique.
func union(sets ...[]int) []int {
	var seen [grid.Cells]bool
	for _, s := range sets {
		for _, i := range s {
			seen[i] = true
		}
	}
	out := make([]int, 0, grid.Cells)
	for i, ok := range seen {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// Cells returns the row-major indices that make up the pattern, or nil for a row or
// column outside the grid.
func (p Pattern) Cells() []int {
	last := grid.Size - 1
	mid := grid.Size / 2

	switch p.Kind {
	case KindRow, KindColumn:
		if p.Index < 0 || p.Index > last {
			return nil
		}
		if p.Kind == KindRow {
			return row(p.Index)
		}
		return column(p.Index)
	case KindDiagonal:
		return diagonal(p.Index)
	case KindFourCorners:
		return []int{0, last, last * grid.Size, grid.Cells - 1}
	case KindLetterX:
		return union(diagonal(DiagonalMain), diagonal(DiagonalAnti))
	case KindLetterT:
		return union(row(0), column(mid))
	case KindLetterL:
		return union(column(0), row(last))
	case KindCross:
		return union(row(mid), column(mid))
	case KindFullCard:
		return union(row(0), row(1), row(2), row(3), row(4))
	case KindCustom:
		out := make([]int, 0, grid.Cells)
		for i, on := range p.Mask {
			if on || i == grid.Center {
				out = append(out, i)
			}
		}
		return out
	}
	return nil
}

// ID is the stable string form stored on games and carried in events.
func (p Pattern) ID() string {
	switch p.Kind {
	case KindRow:
		return "row-" + strconv.Itoa(p.Index)
	case KindColumn:
		return "column-" + strconv.Itoa(p.Index)
	case KindDiagonal:
		if p.Index == DiagonalAnti {
			return "diagonal-anti"
		}
		return "diagonal-main"
	case KindFourCorners:
		return "four-corners"
	case KindLetterX:
		return "letter-x"
	case KindLetterT:
		return "letter-t"
	case KindLetterL:
		return "letter-l"
	case KindCross:
		return "cross"
	case KindFullCard:
		return "full-card"
	case KindCustom:
		return "custom"
	}
	return "unknown"
}

func (p Pattern) String() string { return p.ID() }

// Parse turns an id back into a pattern. "custom" needs the game's mask, so a nil
// mask makes it an error.
func Parse(id string, mask *[grid.Cells]bool) (Pattern, error) {
	id = strings.ToLower(strings.TrimSpace(id))

	if n, ok := strings.CutPrefix(id, "row-"); ok {
		return indexed(Row, id, n)
	}
	if n, ok := strings.CutPrefix(id, "column-"); ok {
		return indexed(Column, id, n)
	}

	switch id {
	case "diagonal-main":
		return MainDiagonal(), nil
	case "diagonal-anti":
		return AntiDiagonal(), nil
	case "four-corners":
		return FourCorners(), nil
	case "letter-x":
		return LetterX(), nil
	case "letter-t":
		return LetterT(), nil
	case "letter-l":
		return LetterL(), nil
	case "cross":
		return Cross(), nil
	case "full-card":
		return FullCard(), nil
	case "custom":
		if mask == nil {
			return Pattern{}, fmt.Errorf("%w: custom pattern without a mask", ErrUnknownPattern)
		}
		return Custom(*mask), nil
	}
	return Pattern{}, fmt.Errorf("%w: %q", ErrUnknownPattern, id)
}

func indexed(build func(int) Pattern, id, n string) (Pattern, error) {
	i, err := strconv.Atoi(n)
	if err != nil || i < 0 || i >= grid.Size {
		return Pattern{}, fmt.Errorf("%w: %q", ErrUnknownPattern, id)
	}
	return build(i), nil
}

// ParseAll resolves a list of ids. An empty list yields Lines().
func ParseAll(ids []string, mask *[grid.Cells]bool) ([]Pattern, error) {
	if len(ids) == 0 {
		return Lines(), nil
	}
	out := make([]Pattern, 0, len(ids))
	for _, id := range ids {
		p, err := Parse(id, mask)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	Sort(out)
	return out, nil
}

// Sort puts patterns in evaluation order: kind first, then index.
func Sort(ps []Pattern) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Kind != ps[j].Kind {
			return ps[i].Kind < ps[j].Kind
		}
		return ps[i].Index < ps[j].Index
	})
}

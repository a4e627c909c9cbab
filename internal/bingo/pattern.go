package bingo

import "fmt"

type PatternKind string

const (
	PatternRow          PatternKind = "row"
	PatternColumn       PatternKind = "column"
	PatternDiagonal     PatternKind = "diagonal"
	PatternAntiDiagonal PatternKind = "anti_diagonal"
)

type Pattern struct {
	Kind  PatternKind `json:"kind"`
	Index int         `json:"index"`
}

func (p Pattern) String() string {
	switch p.Kind {
	case PatternRow, PatternColumn:
		return fmt.Sprintf("%s:%d", p.Kind, p.Index)
	default:
		return string(p.Kind)
	}
}

// Cells lists the [row, col] coordinates covered by the pattern.
func (p Pattern) Cells() [][2]int {
	out := make([][2]int, 0, Size)
	for i := 0; i < Size; i++ {
		switch p.Kind {
		case PatternRow:
			out = append(out, [2]int{p.Index, i})
		case PatternColumn:
			out = append(out, [2]int{i, p.Index})
		case PatternDiagonal:
			out = append(out, [2]int{i, i})
		case PatternAntiDiagonal:
			out = append(out, [2]int{i, Size - 1 - i})
		}
	}
	return out
}

// DetectPattern returns the first complete line, checking rows, then
// columns, then the main diagonal, then the anti-diagonal.
func DetectPattern(m Marks) (Pattern, bool) {
	for r := 0; r < Size; r++ {
		if full(m, Pattern{Kind: PatternRow, Index: r}) {
			return Pattern{Kind: PatternRow, Index: r}, true
		}
	}
	for c := 0; c < Size; c++ {
		if full(m, Pattern{Kind: PatternColumn, Index: c}) {
			return Pattern{Kind: PatternColumn, Index: c}, true
		}
	}
	if full(m, Pattern{Kind: PatternDiagonal}) {
		return Pattern{Kind: PatternDiagonal}, true
	}
	if full(m, Pattern{Kind: PatternAntiDiagonal}) {
		return Pattern{Kind: PatternAntiDiagonal}, true
	}
	return Pattern{}, false
}

func full(m Marks, p Pattern) bool {
	for _, cell := range p.Cells() {
		if !m[cell[0]][cell[1]] {
			return false
		}
	}
	return true
}

// CellValues returns the card numbers on the pattern, skipping the free
// centre.
func CellValues(c Card, p Pattern) []int {
	out := make([]int, 0, Size)
	for _, cell := range p.Cells() {
		if cell[0] == FreeRow && cell[1] == FreeCol {
			continue
		}
		out = append(out, c[cell[0]][cell[1]])
	}
	return out
}

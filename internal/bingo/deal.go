package bingo

import "math/rand"

// Deal draws a valid card: five distinct numbers per column from that
// column's range, with the free centre left at 0.
func Deal(rnd *rand.Rand) Card {
	var c Card
	for col := 0; col < Size; col++ {
		lo, _ := ColumnRange(col)
		picks := rnd.Perm(columnWidth)[:Size]
		for row := 0; row < Size; row++ {
			c[row][col] = lo + picks[row]
		}
	}
	c[FreeRow][FreeCol] = 0
	return c
}

// Rows returns the card as a JSON-friendly grid.
func (c Card) Rows() [][]int {
	out := make([][]int, Size)
	for r := range c {
		out[r] = append([]int(nil), c[r][:]...)
	}
	return out
}

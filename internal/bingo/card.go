package bingo

import (
	"errors"
	"fmt"
)

const (
	Size        = 5
	FreeRow     = 2
	FreeCol     = 2
	MaxNumber   = 75
	columnWidth = 15
)

var letters = [Size]string{"B", "I", "N", "G", "O"}

// Card is a 5x5 grid indexed [row][col]. The centre cell holds 0.
type Card [Size][Size]int

// Marks mirrors Card with a daubed flag per cell.
type Marks [Size][Size]bool

const (
	ReasonInvalidShape    = "invalid_shape"
	ReasonInvalidCenter   = "invalid_center"
	ReasonOutOfRange      = "out_of_range"
	ReasonDuplicateNumber = "duplicate_number"
)

// ValidationError reports a structurally invalid card. Row and Col are -1
// when the violation is not tied to a single cell.
type ValidationError struct {
	Reason string
	Row    int
	Col    int
	Value  int
}

func (e *ValidationError) Error() string {
	if e.Row < 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s at [%d][%d]=%d", e.Reason, e.Row, e.Col, e.Value)
}

var ErrMarkNotCalled = errors.New("claim_mismatch")

// CardFromRows converts a decoded JSON grid into a Card.
func CardFromRows(rows [][]int) (Card, error) {
	var c Card
	if len(rows) != Size {
		return c, &ValidationError{Reason: ReasonInvalidShape, Row: -1, Col: -1}
	}
	for r, row := range rows {
		if len(row) != Size {
			return c, &ValidationError{Reason: ReasonInvalidShape, Row: -1, Col: -1}
		}
		copy(c[r][:], row)
	}
	return c, nil
}

func MarksFromRows(rows [][]bool) (Marks, error) {
	var m Marks
	if len(rows) != Size {
		return m, &ValidationError{Reason: ReasonInvalidShape, Row: -1, Col: -1}
	}
	for r, row := range rows {
		if len(row) != Size {
			return m, &ValidationError{Reason: ReasonInvalidShape, Row: -1, Col: -1}
		}
		copy(m[r][:], row)
	}
	return m, nil
}

// ColumnRange returns the inclusive number range allowed in column col.
func ColumnRange(col int) (int, int) {
	lo := col*columnWidth + 1
	return lo, lo + columnWidth - 1
}

// ValidateCard checks the free centre, per-column ranges and uniqueness.
func ValidateCard(c Card) error {
	if c[FreeRow][FreeCol] != 0 {
		return &ValidationError{Reason: ReasonInvalidCenter, Row: FreeRow, Col: FreeCol, Value: c[FreeRow][FreeCol]}
	}
	seen := make(map[int]struct{}, Size*Size-1)
	for col := 0; col < Size; col++ {
		lo, hi := ColumnRange(col)
		for row := 0; row < Size; row++ {
			if row == FreeRow && col == FreeCol {
				continue
			}
			v := c[row][col]
			if v < lo || v > hi {
				return &ValidationError{Reason: ReasonOutOfRange, Row: row, Col: col, Value: v}
			}
			if _, dup := seen[v]; dup {
				return &ValidationError{Reason: ReasonDuplicateNumber, Row: row, Col: col, Value: v}
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}

// ValidCall reports whether n can be drawn at all.
func ValidCall(n int) bool {
	return n >= 1 && n <= MaxNumber
}

// CallLabel formats a drawn number with its column letter, e.g. "N-42".
func CallLabel(n int) string {
	if !ValidCall(n) {
		return ""
	}
	return fmt.Sprintf("%s-%d", letters[(n-1)/columnWidth], n)
}

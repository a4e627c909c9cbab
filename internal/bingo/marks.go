package bingo

func calledSet(called []int) map[int]struct{} {
	set := make(map[int]struct{}, len(called))
	for _, n := range called {
		set[n] = struct{}{}
	}
	return set
}

// DeriveMarks daubs every cell whose number has been called.
func DeriveMarks(c Card, called []int) Marks {
	set := calledSet(called)
	var m Marks
	for r := 0; r < Size; r++ {
		for col := 0; col < Size; col++ {
			if _, ok := set[c[r][col]]; ok {
				m[r][col] = true
			}
		}
	}
	m[FreeRow][FreeCol] = true
	return m
}

// WithFreeCenter returns m with the centre cell daubed.
func WithFreeCenter(m Marks) Marks {
	m[FreeRow][FreeCol] = true
	return m
}

// VerifyMarks fails with ErrMarkNotCalled if any daubed non-centre cell
// holds a number that was never called.
func VerifyMarks(c Card, m Marks, called []int) error {
	set := calledSet(called)
	for r := 0; r < Size; r++ {
		for col := 0; col < Size; col++ {
			if !m[r][col] || (r == FreeRow && col == FreeCol) {
				continue
			}
			if _, ok := set[c[r][col]]; !ok {
				return ErrMarkNotCalled
			}
		}
	}
	return nil
}

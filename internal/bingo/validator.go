package bingo

// Line identifies one of the twelve winning lines on a card.
type Line struct {
	Kind  LineKind `json:"kind"`
	Index int      `json:"index"`
}

// LineKind is the orientation of a winning line.
type LineKind string

const (
	LineRow          LineKind = "row"
	LineColumn       LineKind = "column"
	LineDiagonal     LineKind = "diagonal"
	LineAntiDiagonal LineKind = "anti_diagonal"
)

// Marked reports whether the cell at row, col counts as marked. The center is
// always marked.
func Marked(card Card, called CallSet, row, col int) bool {
	if row == Center && col == Center {
		return true
	}
	return called.Has(card[row][col])
}

// IsBingo reports whether any row, column or diagonal of the card is fully
// marked by the called set.
func IsBingo(card Card, called CallSet) bool {
	for i := 0; i < GridSize; i++ {
		if rowComplete(card, called, i) || columnComplete(card, called, i) {
			return true
		}
	}
	return diagonalComplete(card, called) || antiDiagonalComplete(card, called)
}

// WinningLines returns every complete line on the card in a stable order:
// rows, then columns, then the main diagonal, then the anti-diagonal.
func WinningLines(card Card, called CallSet) []Line {
	var lines []Line
	for i := 0; i < GridSize; i++ {
		if rowComplete(card, called, i) {
			lines = append(lines, Line{Kind: LineRow, Index: i})
		}
	}
	for i := 0; i < GridSize; i++ {
		if columnComplete(card, called, i) {
			lines = append(lines, Line{Kind: LineColumn, Index: i})
		}
	}
	if diagonalComplete(card, called) {
		lines = append(lines, Line{Kind: LineDiagonal})
	}
	if antiDiagonalComplete(card, called) {
		lines = append(lines, Line{Kind: LineAntiDiagonal})
	}
	return lines
}

func rowComplete(card Card, called CallSet, row int) bool {
	for col := 0; col < GridSize; col++ {
		if !Marked(card, called, row, col) {
			return false
		}
	}
	return true
}

func columnComplete(card Card, called CallSet, col int) bool {
	for row := 0; row < GridSize; row++ {
		if !Marked(card, called, row, col) {
			return false
		}
	}
	return true
}

func diagonalComplete(card Card, called CallSet) bool {
	for i := 0; i < GridSize; i++ {
		if !Marked(card, called, i, i) {
			return false
		}
	}
	return true
}

func antiDiagonalComplete(card Card, called CallSet) bool {
	for i := 0; i < GridSize; i++ {
		if !Marked(card, called, i, GridSize-1-i) {
			return false
		}
	}
	return true
}

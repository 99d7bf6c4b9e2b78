package bingo

import (
	"fmt"

	"icebreaker-bingo/internal/domain"
)

// Line identifies a winning line on the grid.
type Line struct {
	Kind  LineKind `json:"kind"`
	Index int      `json:"index"` // row or column number; zero for diagonals
}

// LineKind enumerates the recognized winning shapes.
type LineKind string

const (
	Row          LineKind = "row"
	Column       LineKind = "column"
	Diagonal     LineKind = "diagonal"
	AntiDiagonal LineKind = "anti-diagonal"
)

func (l Line) String() string {
	switch l.Kind {
	case Row, Column:
		return fmt.Sprintf("%s %d", l.Kind, l.Index)
	default:
		return string(l.Kind)
	}
}

// HasBingo reports whether any row, column or diagonal of card is fully completed.
func HasBingo(card domain.Card) bool {
	return len(WinningLines(card)) > 0
}

// WinningLines lists every completed line: rows first, then columns, then the
// main diagonal and the anti-diagonal. Completions for tasks not on the card
// are ignored.
func WinningLines(card domain.Card) []Line {
	grid := completionGrid(card)

	var lines []Line
	for r := 0; r < domain.GridSize; r++ {
		full := true
		for c := 0; c < domain.GridSize && full; c++ {
			full = grid[r][c]
		}
		if full {
			lines = append(lines, Line{Kind: Row, Index: r})
		}
	}
	for c := 0; c < domain.GridSize; c++ {
		full := true
		for r := 0; r < domain.GridSize && full; r++ {
			full = grid[r][c]
		}
		if full {
			lines = append(lines, Line{Kind: Column, Index: c})
		}
	}

	diag, anti := true, true
	for i := 0; i < domain.GridSize; i++ {
		diag = diag && grid[i][i]
		anti = anti && grid[i][domain.GridSize-1-i]
	}
	if diag {
		lines = append(lines, Line{Kind: Diagonal})
	}
	if anti {
		lines = append(lines, Line{Kind: AntiDiagonal})
	}
	return lines
}

func completionGrid(card domain.Card) [domain.GridSize][domain.GridSize]bool {
	var grid [domain.GridSize][domain.GridSize]bool
	for _, taskID := range card.CompletedTaskIDs() {
		idx := card.CellIndex(taskID)
		if idx < 0 || idx >= domain.CardCells {
			continue
		}
		row, col := Position(idx)
		grid[row][col] = true
	}
	return grid
}

// Package bingo implements card generation, survey matching, completion
// gating and win detection for icebreaker bingo events. Nothing in this
// package performs I/O.
package bingo

import (
	"icebreaker-bingo/internal/domain"
)

// BuildCard lays the event tasks out on a new card in the given order. Every
// cell starts without matches and the card has no completions.
func BuildCard(tasks []domain.Task) (domain.Card, error) {
	if len(tasks) != domain.CardCells {
		return domain.Card{}, domain.ErrInvalidGridSize
	}
	cells := make([]domain.Cell, len(tasks))
	for i, task := range tasks {
		cells[i] = domain.Cell{Task: task, Matches: []domain.Match{}}
	}
	return domain.Card{
		Cells:       cells,
		Completions: []domain.CompletionRecord{},
	}, nil
}

// Position maps a cell index to its row and column.
func Position(index int) (row, col int) {
	return index / domain.GridSize, index % domain.GridSize
}

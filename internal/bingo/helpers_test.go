package bingo

import (
	"fmt"
	"testing"

	"icebreaker-bingo/internal/domain"
)

func sampleTasks(n int) []domain.Task {
	tasks := make([]domain.Task, n)
	for i := range tasks {
		tasks[i] = domain.Task{
			ID:       fmt.Sprintf("t%d", i),
			Text:     fmt.Sprintf("Görev %d", i),
			Category: "networking",
			Points:   10,
		}
	}
	return tasks
}

func newCard(t *testing.T, owner string, tasks []domain.Task) domain.Card {
	t.Helper()
	card, err := BuildCard(tasks)
	if err != nil {
		t.Fatalf("build card: %v", err)
	}
	card.ID = "card-" + owner
	card.EventID = "event-1"
	card.ParticipantID = owner
	return card
}

func completeIndices(card *domain.Card, indices ...int) {
	for _, i := range indices {
		card.Completions = append(card.Completions, domain.CompletionRecord{TaskID: card.Cells[i].Task.ID})
	}
}

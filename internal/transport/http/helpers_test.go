package http

import (
	"context"
	"fmt"
	"testing"
	"time"

	"icebreaker-bingo/internal/app"
	"icebreaker-bingo/internal/domain"
	"icebreaker-bingo/internal/infra/memory"
)

func newTestService(t *testing.T) *app.BingoService {
	t.Helper()
	events := memory.NewEventRepository(memory.NewStaticEventLoader(sampleEvent()), time.Minute)
	users := memory.NewUserDirectory(
		domain.User{ID: "alice", Name: "Alice"},
		domain.User{ID: "bob", Name: "Bob"},
	)
	return app.NewBingoService(events, users, memory.NewCardStore(), memory.NewHubStore())
}

// joinPair joins alice then bob; bob's role answer satisfies alice's cto cell.
func joinPair(t *testing.T, service *app.BingoService) (alice, bob domain.Participant) {
	t.Helper()
	ctx := context.Background()
	alice, _, err := service.Join(ctx, "event-1", "alice", []domain.SurveyAnswer{
		{QuestionID: "role", Values: []string{"Backend Geliştirici"}},
	})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, _, err = service.Join(ctx, "event-1", "bob", []domain.SurveyAnswer{
		{QuestionID: "role", Values: []string{"CTO"}},
	})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	return alice, bob
}

func sampleEvent() domain.Event {
	tasks := make([]domain.Task, domain.CardCells)
	tasks[0] = domain.Task{ID: "cto", Text: "Bir CTO ile tanış", Category: "dev-role", Points: 10}
	for i := 1; i < len(tasks); i++ {
		tasks[i] = domain.Task{ID: fmt.Sprintf("task-%d", i), Text: fmt.Sprintf("Görev %d", i), Category: "networking", Points: 5}
	}
	return domain.Event{
		ID:       "event-1",
		Name:     "Go Meetup",
		IsActive: true,
		Tasks:    tasks,
		SurveyQuestions: []domain.SurveyQuestion{
			{ID: "role", Text: "Rolünüz?", Kind: domain.SingleChoice, Options: []string{"CTO", "Backend Geliştirici"}},
		},
	}
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"icebreaker-bingo/internal/bingo"
	"icebreaker-bingo/internal/domain"
)

func TestCardStoreCreateParticipantLimits(t *testing.T) {
	ctx := context.Background()
	store := NewCardStore()
	event := sampleEvent()
	event.MaxParticipants = 2

	if err := store.CreateParticipant(ctx, event, participant("p1", "u1"), card(t, "c1", "p1")); err != nil {
		t.Fatalf("create p1: %v", err)
	}
	if err := store.CreateParticipant(ctx, event, participant("p1b", "u1"), card(t, "c1b", "p1b")); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if err := store.CreateParticipant(ctx, event, participant("p2", "u2"), card(t, "c2", "p2")); err != nil {
		t.Fatalf("create p2: %v", err)
	}
	if err := store.CreateParticipant(ctx, event, participant("p3", "u3"), card(t, "c3", "p3")); !errors.Is(err, domain.ErrEventFull) {
		t.Fatalf("expected ErrEventFull, got %v", err)
	}
	if _, err := store.Card(ctx, "c3"); !errors.Is(err, domain.ErrCardNotFound) {
		t.Fatalf("rejected join must not leave a card, got %v", err)
	}

	cards, _ := store.CardsByEvent(ctx, event.ID)
	if len(cards) != 2 || cards[0].ID != "c1" || cards[1].ID != "c2" {
		t.Fatalf("unexpected cards %+v", cards)
	}
}

func TestCardStoreUpdateCardRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewCardStore()
	_ = store.CreateParticipant(ctx, sampleEvent(), participant("p1", "u1"), card(t, "c1", "p1"))

	boom := errors.New("boom")
	_, err := store.UpdateCard(ctx, "c1", func(c *domain.Card) error {
		c.Cells[0].Matches = append(c.Cells[0].Matches, domain.Match{ParticipantID: "p2"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ := store.Card(ctx, "c1")
	if len(got.Cells[0].Matches) != 0 {
		t.Fatalf("failed update leaked state: %+v", got.Cells[0].Matches)
	}
}

func TestCardStoreConcurrentCompletionRecordsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewCardStore()
	event := sampleEvent()
	_ = store.CreateParticipant(ctx, event, participant("p1", "u1"), card(t, "c1", "p1"))
	_ = store.CreateParticipant(ctx, event, participant("p2", "u2"), card(t, "c2", "p2"))
	_, _ = store.UpdateCard(ctx, "c1", func(c *domain.Card) error {
		c.Cells[0].Matches = append(c.Cells[0].Matches, domain.Match{ParticipantID: "p2"})
		return nil
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordCompletion(ctx, "c1", func(c *domain.Card) (domain.CompletionRecord, int, error) {
				r, task, err := bingo.Complete(c, "t0", "p1", "p2", time.Now())
				return r, task.Points, err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyCompleted):
				conflicts++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != 15 {
		t.Fatalf("expected 1 success and 15 conflicts, got %d/%d", successes, conflicts)
	}
	got, _ := store.Card(ctx, "c1")
	if len(got.Completions) != 1 {
		t.Fatalf("expected one completion, got %d", len(got.Completions))
	}
	p1, _ := store.Participant(ctx, "p1")
	if p1.Points != 10 {
		t.Fatalf("expected 10 points, got %d", p1.Points)
	}
}

func sampleEvent() domain.Event {
	tasks := make([]domain.Task, domain.CardCells)
	for i := range tasks {
		tasks[i] = domain.Task{ID: fmt.Sprintf("t%d", i), Text: fmt.Sprintf("Görev %d", i), Points: 10}
	}
	return domain.Event{ID: "event-1", Name: "Meetup", IsActive: true, Tasks: tasks}
}

func participant(id, userID string) domain.Participant {
	return domain.Participant{ID: id, EventID: "event-1", UserID: userID, CardID: "c" + id[1:]}
}

func card(t *testing.T, id, owner string) domain.Card {
	t.Helper()
	c, err := bingo.BuildCard(sampleEvent().Tasks)
	if err != nil {
		t.Fatalf("build card: %v", err)
	}
	c.ID = id
	c.EventID = "event-1"
	c.ParticipantID = owner
	return c
}

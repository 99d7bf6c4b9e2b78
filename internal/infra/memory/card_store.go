package memory

import (
	"context"
	"sync"

	"icebreaker-bingo/internal/domain"
)

// CardStore is an in-memory implementation of app.CardStore. A single lock
// serializes writers, so every update is trivially isolated.
type CardStore struct {
	mu                sync.RWMutex
	cards             map[string]domain.Card
	participants      map[string]domain.Participant
	eventCards        map[string][]string
	eventParticipants map[string][]string
}

func NewCardStore() *CardStore {
	return &CardStore{
		cards:             make(map[string]domain.Card),
		participants:      make(map[string]domain.Participant),
		eventCards:        make(map[string][]string),
		eventParticipants: make(map[string][]string),
	}
}

func (s *CardStore) CreateParticipant(_ context.Context, event domain.Event, participant domain.Participant, card domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.eventParticipants[event.ID]
	for _, id := range ids {
		if s.participants[id].UserID == participant.UserID {
			return domain.ErrAlreadyJoined
		}
	}
	if event.MaxParticipants > 0 && len(ids) >= event.MaxParticipants {
		return domain.ErrEventFull
	}

	s.participants[participant.ID] = participant
	s.cards[card.ID] = card.Clone()
	s.eventParticipants[event.ID] = append(ids, participant.ID)
	s.eventCards[event.ID] = append(s.eventCards[event.ID], card.ID)
	return nil
}

func (s *CardStore) Card(_ context.Context, cardID string) (domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[cardID]
	if !ok {
		return domain.Card{}, domain.ErrCardNotFound
	}
	return card.Clone(), nil
}

func (s *CardStore) CardsByEvent(_ context.Context, eventID string) ([]domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.eventCards[eventID]
	out := make([]domain.Card, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cards[id].Clone())
	}
	return out, nil
}

func (s *CardStore) Participant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *CardStore) ParticipantsByEvent(_ context.Context, eventID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.eventParticipants[eventID]
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.participants[id])
	}
	return out, nil
}

func (s *CardStore) UpdateCard(_ context.Context, cardID string, fn func(*domain.Card) error) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cards[cardID]
	if !ok {
		return domain.Card{}, domain.ErrCardNotFound
	}
	card := stored.Clone()
	if err := fn(&card); err != nil {
		return domain.Card{}, err
	}
	s.cards[cardID] = card
	return card.Clone(), nil
}

func (s *CardStore) RecordCompletion(_ context.Context, cardID string, fn func(*domain.Card) (domain.CompletionRecord, int, error)) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cards[cardID]
	if !ok {
		return domain.Card{}, domain.ErrCardNotFound
	}
	card := stored.Clone()
	record, points, err := fn(&card)
	if err != nil {
		return domain.Card{}, err
	}
	performer, ok := s.participants[record.PerformerID]
	if !ok {
		return domain.Card{}, domain.ErrParticipantNotFound
	}
	performer.Points += points
	performer.UpdatedAt = record.CompletedAt

	s.cards[cardID] = card
	s.participants[performer.ID] = performer
	return card.Clone(), nil
}

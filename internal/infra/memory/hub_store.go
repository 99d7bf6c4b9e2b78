package memory

import (
	"sync"

	"icebreaker-bingo/internal/app"
)

// HubStore is an in-memory implementation of app.HubRepository.
type HubStore struct {
	mu   sync.RWMutex
	hubs map[string]*app.Hub
}

func NewHubStore() *HubStore {
	return &HubStore{
		hubs: make(map[string]*app.Hub),
	}
}

func (s *HubStore) GetOrCreate(eventID string) *app.Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hub, ok := s.hubs[eventID]; ok {
		return hub
	}
	hub := app.NewHub(eventID)
	s.hubs[eventID] = hub
	return hub
}

func (s *HubStore) Get(eventID string) (*app.Hub, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hub, ok := s.hubs[eventID]
	return hub, ok
}

func (s *HubStore) DeleteIfEmpty(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub, ok := s.hubs[eventID]
	if !ok {
		return
	}
	if hub.IsEmpty() {
		delete(s.hubs, eventID)
	}
}

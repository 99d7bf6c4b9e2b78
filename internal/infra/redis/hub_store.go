package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"icebreaker-bingo/internal/app"
)

// HubStore is a Redis-aware implementation of app.HubRepository.
// Notes:
//   - Hubs themselves stay in process; subscribers are connected to this instance.
//   - Redis carries a liveness marker per event with live subscribers so other
//     instances and operators can see which events are being watched.
type HubStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	hubs   map[string]*app.Hub
}

func NewHubStore(client *redis.Client, ttl time.Duration) *HubStore {
	return &HubStore{
		client: client,
		ttl:    ttl,
		hubs:   make(map[string]*app.Hub),
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), hubKey(eventID), "1", s.ttl).Err()
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
		_ = s.client.Del(context.Background(), hubKey(eventID)).Err()
	}
}

func hubKey(eventID string) string {
	return "bingo:hub:" + eventID
}

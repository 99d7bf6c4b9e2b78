package app

import (
	"sync"

	"icebreaker-bingo/internal/domain"
)

// HubRepository abstracts where live-update hubs are kept (in-memory, Redis, etc).
type HubRepository interface {
	GetOrCreate(eventID string) *Hub
	Get(eventID string) (*Hub, bool)
	DeleteIfEmpty(eventID string)
}

// Hub fans leaderboard snapshots out to the subscribers of one event.
type Hub struct {
	eventID     string
	mu          sync.Mutex
	latest      *domain.Leaderboard
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewHub is exported for infrastructure layers that keep hubs.
func NewHub(eventID string) *Hub {
	return &Hub{
		eventID:     eventID,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// IsEmpty reports whether the hub has no subscribers.
func (h *Hub) IsEmpty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers) == 0
}

// subscribe registers a channel and primes it with initial.
func (h *Hub) subscribe(initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	if h.latest == nil || !h.latest.UpdatedAt.After(initial.UpdatedAt) {
		h.latest = &initial
	}
	ch <- *h.latest
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latest != nil && lb.UpdatedAt.Before(h.latest.UpdatedAt) {
		return
	}
	h.latest = &lb
	for ch := range h.subscribers {
		select {
		case ch <- lb:
		default:
			// slow subscriber: drop the stale snapshot and keep the newest
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

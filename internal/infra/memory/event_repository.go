package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"icebreaker-bingo/internal/domain"
)

// EventLoader fetches event definitions from a backing store (e.g., Postgres).
type EventLoader interface {
	LoadEvent(ctx context.Context, eventID string) (domain.Event, error)
}

// EventRepository caches events with TTL to avoid repeated DB hits.
type EventRepository struct {
	loader EventLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedEvent
}

type cachedEvent struct {
	event     domain.Event
	expiresAt time.Time
}

func NewEventRepository(loader EventLoader, ttl time.Duration) *EventRepository {
	return &EventRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedEvent),
	}
}

func (r *EventRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	if event, ok := r.cached(eventID); ok {
		return event, nil
	}

	result, err, _ := r.sf.Do(eventID, func() (interface{}, error) {
		if event, ok := r.cached(eventID); ok {
			return event, nil
		}

		event, err := r.loader.LoadEvent(ctx, eventID)
		if err != nil {
			return domain.Event{}, err
		}

		r.mu.Lock()
		r.cache[eventID] = cachedEvent{
			event:     event,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return event, nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return result.(domain.Event), nil
}

// Invalidate drops a cached event so the next read goes to the loader.
func (r *EventRepository) Invalidate(eventID string) {
	r.mu.Lock()
	delete(r.cache, eventID)
	r.mu.Unlock()
}

func (r *EventRepository) cached(eventID string) (domain.Event, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[eventID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Event{}, false
	}
	return entry.event, true
}

// StaticEventLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticEventLoader struct {
	events map[string]domain.Event
}

func NewStaticEventLoader(events ...domain.Event) *StaticEventLoader {
	m := make(map[string]domain.Event, len(events))
	for _, e := range events {
		m[e.ID] = e
	}
	return &StaticEventLoader{events: m}
}

func (l *StaticEventLoader) LoadEvent(_ context.Context, eventID string) (domain.Event, error) {
	if event, ok := l.events[eventID]; ok {
		return event, nil
	}
	return domain.Event{}, domain.ErrEventNotFound
}

// ttlWithJitterLocked must be called with mu held; rand.Rand is not safe for concurrent use.
func (r *EventRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"icebreaker-bingo/internal/domain"
)

// EventLoader fetches event definitions from a backing store (e.g., Postgres).
type EventLoader interface {
	LoadEvent(ctx context.Context, eventID string) (domain.Event, error)
}

// EventRepository caches event definitions in Redis and falls back to a loader on cache miss.
// Events are stored as: SET bingo:event:{eventID} {json}
type EventRepository struct {
	client *redis.Client
	loader EventLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewEventRepository(client *redis.Client, loader EventLoader, ttl time.Duration) *EventRepository {
	return &EventRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *EventRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	if event, ok := r.cached(ctx, eventID); ok {
		return event, nil
	}

	result, err, _ := r.sf.Do(eventID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if event, ok := r.cached(ctx, eventID); ok {
			return event, nil
		}

		event, err := r.loader.LoadEvent(ctx, eventID)
		if err != nil {
			return domain.Event{}, err
		}

		data, err := json.Marshal(event)
		if err != nil {
			return domain.Event{}, err
		}
		if err := r.client.Set(ctx, eventKey(eventID), data, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache event %s: %v", eventID, err)
		}
		return event, nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return result.(domain.Event), nil
}

// Invalidate drops the cached copy of an event.
func (r *EventRepository) Invalidate(ctx context.Context, eventID string) error {
	return r.client.Del(ctx, eventKey(eventID)).Err()
}

func (r *EventRepository) cached(ctx context.Context, eventID string) (domain.Event, bool) {
	data, err := r.client.Get(ctx, eventKey(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read cached event %s: %v", eventID, err)
		}
		return domain.Event{}, false
	}
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, false
	}
	return event, true
}

func eventKey(eventID string) string {
	return "bingo:event:" + eventID
}

func (r *EventRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

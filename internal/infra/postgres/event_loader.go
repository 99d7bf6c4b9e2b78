package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"icebreaker-bingo/internal/domain"
)

// EventLoader loads event JSONB from Postgres.
type EventLoader struct {
	pool *pgxpool.Pool
}

func NewEventLoader(pool *pgxpool.Pool) *EventLoader {
	return &EventLoader{pool: pool}
}

func (l *EventLoader) LoadEvent(ctx context.Context, eventID string) (domain.Event, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM events WHERE id=$1`, eventID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("load event: %w", err)
	}
	var event domain.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}

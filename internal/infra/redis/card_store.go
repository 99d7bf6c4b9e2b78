package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"icebreaker-bingo/internal/domain"
)

const defaultMaxRetries = 25

// CardStore keeps participants and cards as JSON documents in Redis. Every
// write runs inside WATCH/MULTI so concurrent joins and completions touching
// the same card retry instead of overwriting each other.
//
// Layout:
//
//	bingo:card:{cardID}                 card JSON
//	bingo:participant:{participantID}   participant JSON
//	bingo:event:{eventID}:cards         LIST of card ids in join order
//	bingo:event:{eventID}:participants  LIST of participant ids in join order
//	bingo:event:{eventID}:users         HASH userID -> participantID
type CardStore struct {
	client     *redis.Client
	maxRetries int
}

func NewCardStore(client *redis.Client) *CardStore {
	return &CardStore{client: client, maxRetries: defaultMaxRetries}
}

func (s *CardStore) CreateParticipant(ctx context.Context, event domain.Event, participant domain.Participant, card domain.Card) error {
	usersKey := eventUsersKey(event.ID)
	listKey := eventParticipantsKey(event.ID)

	pData, err := json.Marshal(participant)
	if err != nil {
		return err
	}
	cData, err := json.Marshal(card)
	if err != nil {
		return err
	}

	return s.watch(ctx, func(tx *redis.Tx) error {
		joined, err := tx.HExists(ctx, usersKey, participant.UserID).Result()
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if joined {
			return domain.ErrAlreadyJoined
		}
		if event.MaxParticipants > 0 {
			n, err := tx.LLen(ctx, listKey).Result()
			if err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if n >= int64(event.MaxParticipants) {
				return domain.ErrEventFull
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, usersKey, participant.UserID, participant.ID)
			pipe.Set(ctx, participantKey(participant.ID), pData, 0)
			pipe.Set(ctx, cardKey(card.ID), cData, 0)
			pipe.RPush(ctx, listKey, participant.ID)
			pipe.RPush(ctx, eventCardsKey(event.ID), card.ID)
			return nil
		})
		return err
	}, usersKey, listKey)
}

func (s *CardStore) Card(ctx context.Context, cardID string) (domain.Card, error) {
	var card domain.Card
	err := getJSON(ctx, s.client, cardKey(cardID), &card, domain.ErrCardNotFound)
	return card, err
}

func (s *CardStore) CardsByEvent(ctx context.Context, eventID string) ([]domain.Card, error) {
	var cards []domain.Card
	err := s.listJSON(ctx, eventCardsKey(eventID), cardKey, func(data []byte) error {
		var card domain.Card
		if err := json.Unmarshal(data, &card); err != nil {
			return err
		}
		cards = append(cards, card)
		return nil
	})
	return cards, err
}

func (s *CardStore) Participant(ctx context.Context, participantID string) (domain.Participant, error) {
	var p domain.Participant
	err := getJSON(ctx, s.client, participantKey(participantID), &p, domain.ErrParticipantNotFound)
	return p, err
}

func (s *CardStore) ParticipantsByEvent(ctx context.Context, eventID string) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := s.listJSON(ctx, eventParticipantsKey(eventID), participantKey, func(data []byte) error {
		var p domain.Participant
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		participants = append(participants, p)
		return nil
	})
	return participants, err
}

func (s *CardStore) UpdateCard(ctx context.Context, cardID string, fn func(*domain.Card) error) (domain.Card, error) {
	key := cardKey(cardID)
	var out domain.Card
	err := s.watch(ctx, func(tx *redis.Tx) error {
		var card domain.Card
		if err := getJSON(ctx, tx, key, &card, domain.ErrCardNotFound); err != nil {
			return err
		}
		if err := fn(&card); err != nil {
			return err
		}
		data, err := json.Marshal(card)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			out = card
		}
		return err
	}, key)
	return out, err
}

func (s *CardStore) RecordCompletion(ctx context.Context, cardID string, fn func(*domain.Card) (domain.CompletionRecord, int, error)) (domain.Card, error) {
	key := cardKey(cardID)
	var out domain.Card
	err := s.watch(ctx, func(tx *redis.Tx) error {
		var card domain.Card
		if err := getJSON(ctx, tx, key, &card, domain.ErrCardNotFound); err != nil {
			return err
		}
		record, points, err := fn(&card)
		if err != nil {
			return err
		}

		pKey := participantKey(record.PerformerID)
		if err := tx.Watch(ctx, pKey).Err(); err != nil {
			return err
		}
		var performer domain.Participant
		if err := getJSON(ctx, tx, pKey, &performer, domain.ErrParticipantNotFound); err != nil {
			return err
		}
		performer.Points += points
		performer.UpdatedAt = record.CompletedAt

		cData, err := json.Marshal(card)
		if err != nil {
			return err
		}
		pData, err := json.Marshal(performer)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, cData, 0)
			pipe.Set(ctx, pKey, pData, 0)
			return nil
		})
		if err == nil {
			out = card
		}
		return err
	}, key)
	return out, err
}

// watch runs fn under optimistic locking of keys, retrying when another
// client modified a watched key before EXEC.
func (s *CardStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return domain.ErrConcurrentUpdate
}

func (s *CardStore) listJSON(ctx context.Context, listKey string, itemKey func(string) string, each func([]byte) error) error {
	ids, err := s.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list %s: %w", listKey, err)
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("load %s: %w", listKey, err)
	}
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if err := each([]byte(str)); err != nil {
			return err
		}
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, c getter, key string, v any, missing error) error {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return missing
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

func cardKey(cardID string) string {
	return "bingo:card:" + cardID
}

func participantKey(participantID string) string {
	return "bingo:participant:" + participantID
}

func eventCardsKey(eventID string) string {
	return "bingo:event:" + eventID + ":cards"
}

func eventParticipantsKey(eventID string) string {
	return "bingo:event:" + eventID + ":participants"
}

func eventUsersKey(eventID string) string {
	return "bingo:event:" + eventID + ":users"
}

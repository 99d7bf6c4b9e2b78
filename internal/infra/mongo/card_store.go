package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"icebreaker-bingo/internal/domain"
)

const (
	defaultMaxRetries = 25
	rollbackTimeout   = 5 * time.Second
)

// CardStore keeps cards and participants in MongoDB. Cards carry a version
// number and every write is a compare-and-swap on it, so concurrent updates
// to the same card retry against the fresh document instead of clobbering
// each other. Point awards are guarded by the awardedTasks set on the
// participant, which makes them safe to replay.
type CardStore struct {
	cards        *mongo.Collection
	participants *mongo.Collection
	counters     *mongo.Collection
	maxRetries   int
}

type cardDocument struct {
	ID      string      `bson:"_id"`
	EventID string      `bson:"eventId"`
	Seq     int64       `bson:"seq"`
	Version int64       `bson:"version"`
	Card    domain.Card `bson:"card"`
}

type participantDocument struct {
	ID           string                `bson:"_id"`
	EventID      string                `bson:"eventId"`
	UserID       string                `bson:"userId"`
	CardID       string                `bson:"cardId"`
	Seq          int64                 `bson:"seq"`
	Identity     domain.Identity       `bson:"identity"`
	Answers      []domain.SurveyAnswer `bson:"answers"`
	Points       int                   `bson:"points"`
	AwardedTasks []string              `bson:"awardedTasks"`
	JoinedAt     time.Time             `bson:"joinedAt"`
	UpdatedAt    time.Time             `bson:"updatedAt"`
}

type counterDocument struct {
	ID     string `bson:"_id"`
	Joined int64  `bson:"joined"`
}

func NewCardStore(db *mongo.Database) *CardStore {
	return &CardStore{
		cards:        db.Collection("cards"),
		participants: db.Collection("participants"),
		counters:     db.Collection("event_counters"),
		maxRetries:   defaultMaxRetries,
	}
}

// EnsureIndexes creates the indexes the store relies on. The unique
// (eventId, userId) index is what rejects double joins under races.
func (s *CardStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.participants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_event_user")},
		{Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetName("event_seq")},
	})
	if err != nil {
		return fmt.Errorf("participant indexes: %w", err)
	}
	_, err = s.cards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "eventId", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetName("event_seq"),
	})
	if err != nil {
		return fmt.Errorf("card indexes: %w", err)
	}
	return nil
}

func (s *CardStore) CreateParticipant(ctx context.Context, event domain.Event, participant domain.Participant, card domain.Card) error {
	err := s.participants.FindOne(ctx, bson.M{"eventId": event.ID, "userId": participant.UserID}).Err()
	if err == nil {
		return domain.ErrAlreadyJoined
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("check membership: %w", err)
	}

	seq, err := s.reserveSeat(ctx, event)
	if err != nil {
		return err
	}

	pDoc := toParticipantDocument(participant, seq)
	if _, err := s.participants.InsertOne(ctx, pDoc); err != nil {
		s.releaseSeat(ctx, event.ID)
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("insert participant: %w", err)
	}

	cDoc := cardDocument{ID: card.ID, EventID: event.ID, Seq: seq, Card: card}
	if _, err := s.cards.InsertOne(ctx, cDoc); err != nil {
		rctx, cancel := rollbackContext(ctx)
		defer cancel()
		if _, derr := s.participants.DeleteOne(rctx, bson.M{"_id": participant.ID}); derr != nil {
			log.Printf("rollback participant %s: %v", participant.ID, derr)
		}
		s.releaseSeat(ctx, event.ID)
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

// reserveSeat bumps the event's join counter, refusing once the limit is
// reached. When the counter is full the upsert collides on _id, which is the
// signal that no seat is left.
func (s *CardStore) reserveSeat(ctx context.Context, event domain.Event) (int64, error) {
	filter := bson.M{"_id": event.ID}
	if event.MaxParticipants > 0 {
		filter["joined"] = bson.M{"$lt": event.MaxParticipants}
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDocument
	err := s.counters.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"joined": 1}}, opts).Decode(&counter)
	if mongo.IsDuplicateKeyError(err) {
		return 0, domain.ErrEventFull
	}
	if err != nil {
		return 0, fmt.Errorf("reserve seat: %w", err)
	}
	return counter.Joined, nil
}

// releaseSeat gives back a seat taken by a join that did not complete. It
// runs even when ctx is already cancelled.
func (s *CardStore) releaseSeat(ctx context.Context, eventID string) {
	rctx, cancel := rollbackContext(ctx)
	defer cancel()
	if _, err := s.counters.UpdateOne(rctx, bson.M{"_id": eventID}, bson.M{"$inc": bson.M{"joined": -1}}); err != nil {
		log.Printf("release seat for event %s: %v", eventID, err)
	}
}

// rollbackContext detaches compensating writes from the caller's
// cancellation while keeping them bounded.
func rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
}

func (s *CardStore) Card(ctx context.Context, cardID string) (domain.Card, error) {
	doc, err := s.loadCard(ctx, cardID)
	return doc.Card, err
}

func (s *CardStore) CardsByEvent(ctx context.Context, eventID string) ([]domain.Card, error) {
	cursor, err := s.cards.Find(ctx, bson.M{"eventId": eventID}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find cards: %w", err)
	}
	var docs []cardDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	cards := make([]domain.Card, 0, len(docs))
	for _, doc := range docs {
		cards = append(cards, doc.Card)
	}
	return cards, nil
}

func (s *CardStore) Participant(ctx context.Context, participantID string) (domain.Participant, error) {
	var doc participantDocument
	err := s.participants.FindOne(ctx, bson.M{"_id": participantID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CardStore) ParticipantsByEvent(ctx context.Context, eventID string) ([]domain.Participant, error) {
	cursor, err := s.participants.Find(ctx, bson.M{"eventId": eventID}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find participants: %w", err)
	}
	var docs []participantDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (s *CardStore) UpdateCard(ctx context.Context, cardID string, fn func(*domain.Card) error) (domain.Card, error) {
	var out domain.Card
	err := s.swap(ctx, cardID, func(card *domain.Card) error {
		if err := fn(card); err != nil {
			return err
		}
		out = *card
		return nil
	})
	return out, err
}

func (s *CardStore) RecordCompletion(ctx context.Context, cardID string, fn func(*domain.Card) (domain.CompletionRecord, int, error)) (domain.Card, error) {
	var (
		out    domain.Card
		record domain.CompletionRecord
		points int
	)
	err := s.swap(ctx, cardID, func(card *domain.Card) error {
		r, p, err := fn(card)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyCompleted) {
				// a previous attempt may have stored the record and lost the award
				s.reconcileAwards(ctx, *card)
			}
			return err
		}
		out, record, points = *card, r, p
		return nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	if err := s.award(ctx, cardID, record, points); err != nil {
		return domain.Card{}, err
	}
	return out, nil
}

// swap loads the card, applies fn and writes it back only if nobody else
// bumped the version in between.
func (s *CardStore) swap(ctx context.Context, cardID string, fn func(*domain.Card) error) error {
	for i := 0; i < s.maxRetries; i++ {
		doc, err := s.loadCard(ctx, cardID)
		if err != nil {
			return err
		}
		if err := fn(&doc.Card); err != nil {
			return err
		}
		version := doc.Version
		doc.Version++
		res, err := s.cards.ReplaceOne(ctx, bson.M{"_id": cardID, "version": version}, doc)
		if err != nil {
			return fmt.Errorf("replace card: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return domain.ErrConcurrentUpdate
}

// award credits points for one completion at most once.
func (s *CardStore) award(ctx context.Context, cardID string, record domain.CompletionRecord, points int) error {
	key := cardID + ":" + record.TaskID
	_, err := s.participants.UpdateOne(ctx,
		bson.M{"_id": record.PerformerID, "awardedTasks": bson.M{"$ne": key}},
		bson.M{
			"$inc":      bson.M{"points": points},
			"$set":      bson.M{"updatedAt": record.CompletedAt},
			"$addToSet": bson.M{"awardedTasks": key},
		},
	)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	return nil
}

func (s *CardStore) reconcileAwards(ctx context.Context, card domain.Card) {
	for _, record := range card.Completions {
		idx := card.CellIndex(record.TaskID)
		if idx < 0 {
			continue
		}
		_ = s.award(ctx, card.ID, record, card.Cells[idx].Task.Points)
	}
}

func (s *CardStore) loadCard(ctx context.Context, cardID string) (cardDocument, error) {
	var doc cardDocument
	err := s.cards.FindOne(ctx, bson.M{"_id": cardID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return cardDocument{}, domain.ErrCardNotFound
	}
	if err != nil {
		return cardDocument{}, fmt.Errorf("load card: %w", err)
	}
	return doc, nil
}

func toParticipantDocument(p domain.Participant, seq int64) participantDocument {
	return participantDocument{
		ID:           p.ID,
		EventID:      p.EventID,
		UserID:       p.UserID,
		CardID:       p.CardID,
		Seq:          seq,
		Identity:     p.Identity,
		Answers:      p.Answers,
		Points:       p.Points,
		AwardedTasks: []string{},
		JoinedAt:     p.JoinedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (d participantDocument) toDomain() domain.Participant {
	return domain.Participant{
		ID:        d.ID,
		EventID:   d.EventID,
		UserID:    d.UserID,
		CardID:    d.CardID,
		Identity:  d.Identity,
		Answers:   d.Answers,
		Points:    d.Points,
		JoinedAt:  d.JoinedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"icebreaker-bingo/internal/bingo"
	"icebreaker-bingo/internal/domain"
)

// reindexConcurrency bounds how many cards are updated in parallel per join.
const reindexConcurrency = 8

// EventRepository loads event definitions (from cache/backing store).
type EventRepository interface {
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
}

// UserDirectory resolves external user identities.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// CardStore persists participants and their cards. UpdateCard and
// RecordCompletion must apply fn in isolation from concurrent writers of the
// same card; fn may be invoked more than once when a store retries.
type CardStore interface {
	CreateParticipant(ctx context.Context, event domain.Event, participant domain.Participant, card domain.Card) error
	Card(ctx context.Context, cardID string) (domain.Card, error)
	CardsByEvent(ctx context.Context, eventID string) ([]domain.Card, error)
	Participant(ctx context.Context, participantID string) (domain.Participant, error)
	ParticipantsByEvent(ctx context.Context, eventID string) ([]domain.Participant, error)
	UpdateCard(ctx context.Context, cardID string, fn func(*domain.Card) error) (domain.Card, error)
	// RecordCompletion appends the record returned by fn and adds the returned
	// points to the performer in one unit. When fn reports
	// domain.ErrAlreadyCompleted the points are still returned so stores can
	// reconcile a previously interrupted increment.
	RecordCompletion(ctx context.Context, cardID string, fn func(*domain.Card) (domain.CompletionRecord, int, error)) (domain.Card, error)
}

// BingoService contains the icebreaker bingo use cases.
type BingoService struct {
	events   EventRepository
	users    UserDirectory
	cards    CardStore
	hubs     HubRepository
	now      func() time.Time
	newID    func() string
	qrWindow time.Duration
}

func NewBingoService(events EventRepository, users UserDirectory, cards CardStore, hubs HubRepository) *BingoService {
	return &BingoService{
		events:   events,
		users:    users,
		cards:    cards,
		hubs:     hubs,
		now:      time.Now,
		newID:    uuid.NewString,
		qrWindow: bingo.DefaultFreshness,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *BingoService) WithClock(now func() time.Time) *BingoService {
	s.now = now
	return s
}

// WithQRWindow overrides how long issued QR payloads stay fresh.
func (s *BingoService) WithQRWindow(window time.Duration) *BingoService {
	if window > 0 {
		s.qrWindow = window
	}
	return s
}

// CardView is a card with its derived win state.
type CardView struct {
	Card      domain.Card  `json:"card"`
	Bingo     bool         `json:"bingo"`
	Lines     []bingo.Line `json:"lines"`
	Completed int          `json:"completed"`
}

// CompletionResult summarizes a successful task completion.
type CompletionResult struct {
	Record      domain.CompletionRecord `json:"record"`
	Awarded     int                     `json:"awarded"`
	TotalPoints int                     `json:"totalPoints"`
	Bingo       bool                    `json:"bingo"`
	Lines       []bingo.Line            `json:"lines"`
}

// Join registers a user in an event, builds their card and indexes matches
// in both directions.
func (s *BingoService) Join(ctx context.Context, eventID, userID string, answers []domain.SurveyAnswer) (domain.Participant, domain.Card, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Participant{}, domain.Card{}, err
	}
	now := s.now()
	if !event.AcceptsJoins(now) {
		return domain.Participant{}, domain.Card{}, domain.ErrEventClosed
	}

	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return domain.Participant{}, domain.Card{}, err
	}
	normalized, err := validateAnswers(event, answers)
	if err != nil {
		return domain.Participant{}, domain.Card{}, err
	}

	card, err := bingo.BuildCard(event.Tasks)
	if err != nil {
		return domain.Participant{}, domain.Card{}, err
	}
	participant := domain.Participant{
		ID:        s.newID(),
		EventID:   event.ID,
		UserID:    user.ID,
		CardID:    s.newID(),
		Identity:  identityOf(user),
		Answers:   normalized,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	card.ID = participant.CardID
	card.EventID = event.ID
	card.ParticipantID = participant.ID
	card.CreatedAt = now

	err = s.cards.CreateParticipant(ctx, event, participant, card)
	if errors.Is(err, domain.ErrAlreadyJoined) {
		return s.rejoin(ctx, event.ID, user.ID)
	}
	if err != nil {
		return domain.Participant{}, domain.Card{}, err
	}
	if _, err := s.Reindex(ctx, event.ID, participant.ID); err != nil {
		return participant, card, fmt.Errorf("index participant %s: %w", participant.ID, err)
	}
	s.publish(ctx, event.ID)

	card, err = s.cards.Card(ctx, card.ID)
	if err != nil {
		return participant, domain.Card{}, err
	}
	return participant, card, nil
}

// rejoin returns the participant a user already has in an event. Matching is
// re-run first so a join whose indexing failed part way is completed.
func (s *BingoService) rejoin(ctx context.Context, eventID, userID string) (domain.Participant, domain.Card, error) {
	participants, err := s.cards.ParticipantsByEvent(ctx, eventID)
	if err != nil {
		return domain.Participant{}, domain.Card{}, err
	}
	var existing domain.Participant
	for _, p := range participants {
		if p.UserID == userID {
			existing = p
			break
		}
	}
	if existing.ID == "" {
		return domain.Participant{}, domain.Card{}, domain.ErrAlreadyJoined
	}
	added, err := s.Reindex(ctx, eventID, existing.ID)
	if err != nil {
		return existing, domain.Card{}, fmt.Errorf("index participant %s: %w", existing.ID, err)
	}
	if added > 0 {
		s.publish(ctx, eventID)
	}
	card, err := s.cards.Card(ctx, existing.CardID)
	if err != nil {
		return existing, domain.Card{}, err
	}
	return existing, card, nil
}

// Reindex matches a participant against every other card of the event and
// matches every other participant against the participant's own card. It is
// safe to call repeatedly and returns how many matches were appended.
func (s *BingoService) Reindex(ctx context.Context, eventID, participantID string) (int, error) {
	joiner, err := s.cards.Participant(ctx, participantID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return 0, domain.ErrUnknownParticipant
	}
	if err != nil {
		return 0, err
	}
	if joiner.EventID != eventID {
		return 0, domain.ErrUnknownParticipant
	}

	participants, err := s.cards.ParticipantsByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	cards, err := s.cards.CardsByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}

	// Identity snapshots are refreshed from the directory before any write.
	others := make([]domain.Participant, 0, len(participants))
	for _, p := range participants {
		refreshed, err := s.withIdentity(ctx, p)
		if err != nil {
			return 0, err
		}
		if p.ID == joiner.ID {
			joiner.Identity = refreshed.Identity
			continue
		}
		others = append(others, refreshed)
	}

	now := s.now()
	var added atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)
	for _, card := range cards {
		cardID := card.ID
		own := card.ParticipantID == joiner.ID
		g.Go(func() error {
			var n int
			_, err := s.cards.UpdateCard(gctx, cardID, func(c *domain.Card) error {
				n = 0
				if own {
					for _, other := range others {
						n += bingo.IndexCard(c, other, now)
					}
					return nil
				}
				n = bingo.IndexCard(c, joiner, now)
				return nil
			})
			if err != nil {
				return fmt.Errorf("update card %s: %w", cardID, err)
			}
			added.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(added.Load()), err
	}
	return int(added.Load()), nil
}

// IssueQR builds a fresh payload proving that the card owner performed taskID.
func (s *BingoService) IssueQR(ctx context.Context, cardID, taskID string) (bingo.Payload, []byte, error) {
	card, err := s.cards.Card(ctx, cardID)
	if err != nil {
		return bingo.Payload{}, nil, err
	}
	if card.CellIndex(taskID) < 0 {
		return bingo.Payload{}, nil, domain.ErrUnknownTask
	}
	payload := bingo.NewPayload(card.ID, taskID, card.ParticipantID, s.now())
	raw, err := bingo.EncodePayload(payload)
	if err != nil {
		return bingo.Payload{}, nil, err
	}
	return payload, raw, nil
}

// Scan validates a scanned QR payload on behalf of verifierID and completes
// the task on the performer's card.
func (s *BingoService) Scan(ctx context.Context, raw []byte, verifierID string) (CompletionResult, error) {
	payload, err := bingo.DecodePayload(raw)
	if err != nil {
		return CompletionResult{}, err
	}
	if !payload.IsFresh(s.now(), s.qrWindow) {
		return CompletionResult{}, domain.ErrExpiredPayload
	}
	if verifierID == "" || verifierID == payload.ParticipantID {
		return CompletionResult{}, domain.ErrNotAuthorizedVerifier
	}

	card, err := s.cards.Card(ctx, payload.CardID)
	if err != nil {
		return CompletionResult{}, err
	}
	if card.ParticipantID != payload.ParticipantID {
		return CompletionResult{}, domain.ErrPayloadMismatch
	}
	verifier, err := s.cards.Participant(ctx, verifierID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return CompletionResult{}, domain.ErrUnknownParticipant
	}
	if err != nil {
		return CompletionResult{}, err
	}
	if verifier.EventID != card.EventID {
		return CompletionResult{}, domain.ErrNotAuthorizedVerifier
	}
	return s.Complete(ctx, card.ID, payload.TaskID, payload.ParticipantID, verifierID)
}

// Complete records that performerID did taskID, verified by verifierID, and
// awards the task's points to the performer. The performer must own the card.
func (s *BingoService) Complete(ctx context.Context, cardID, taskID, performerID, verifierID string) (CompletionResult, error) {
	now := s.now()
	var (
		record  domain.CompletionRecord
		awarded int
	)
	card, err := s.cards.RecordCompletion(ctx, cardID, func(c *domain.Card) (domain.CompletionRecord, int, error) {
		if c.ParticipantID != performerID {
			return domain.CompletionRecord{}, 0, domain.ErrPayloadMismatch
		}
		r, task, err := bingo.Complete(c, taskID, performerID, verifierID, now)
		record, awarded = r, task.Points
		return r, task.Points, err
	})
	if err != nil {
		return CompletionResult{}, err
	}

	result := CompletionResult{
		Record:  record,
		Awarded: awarded,
		Lines:   bingo.WinningLines(card),
	}
	result.Bingo = len(result.Lines) > 0
	performer, err := s.cards.Participant(ctx, performerID)
	if err != nil {
		log.Printf("load performer %s: %v", performerID, err)
	} else {
		result.TotalPoints = performer.Points
	}
	s.publish(ctx, card.EventID)
	return result, nil
}

// CardView returns a card together with its current bingo state.
func (s *BingoService) CardView(ctx context.Context, cardID string) (CardView, error) {
	card, err := s.cards.Card(ctx, cardID)
	if err != nil {
		return CardView{}, err
	}
	return viewOf(card), nil
}

// ParticipantCard resolves a participant together with their card view.
func (s *BingoService) ParticipantCard(ctx context.Context, participantID string) (domain.Participant, CardView, error) {
	participant, err := s.cards.Participant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, CardView{}, err
	}
	view, err := s.CardView(ctx, participant.CardID)
	if err != nil {
		return domain.Participant{}, CardView{}, err
	}
	return participant, view, nil
}

// Leaderboard ranks the participants of an event by points.
func (s *BingoService) Leaderboard(ctx context.Context, eventID string) (domain.Leaderboard, error) {
	participants, cards, err := s.eventState(ctx, eventID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	byCard := make(map[string]domain.Card, len(cards))
	for _, c := range cards {
		byCard[c.ID] = c
	}
	updated := make(map[string]time.Time, len(participants))
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		card := byCard[p.CardID]
		updated[p.ID] = p.UpdatedAt
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.Identity.Name,
			Points:        p.Points,
			Completed:     len(card.Completions),
			Bingo:         bingo.HasBingo(card),
		})
	}

	// Score desc, then whoever reached the score first, then name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		ui, uj := updated[entries[i].ParticipantID], updated[entries[j].ParticipantID]
		if !ui.Equal(uj) {
			return ui.Before(uj)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return domain.Leaderboard{
		EventID:   eventID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// Stats summarizes completion progress across an event.
func (s *BingoService) Stats(ctx context.Context, eventID string) (domain.EventStats, error) {
	participants, cards, err := s.eventState(ctx, eventID)
	if err != nil {
		return domain.EventStats{}, err
	}
	stats := domain.EventStats{EventID: eventID, Participants: len(participants)}
	var rateSum float64
	for _, c := range cards {
		stats.CompletedTasks += len(c.Completions)
		if bingo.HasBingo(c) {
			stats.Bingos++
		}
		if len(c.Cells) > 0 {
			rateSum += float64(len(c.Completions)) / float64(len(c.Cells)) * 100
		}
	}
	if len(cards) > 0 {
		stats.AverageCompletionRate = rateSum / float64(len(cards))
	}
	return stats, nil
}

// Subscribe returns a channel that receives leaderboard updates for an event.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *BingoService) Subscribe(ctx context.Context, eventID string) (<-chan domain.Leaderboard, func(), error) {
	lb, err := s.Leaderboard(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	hub := s.hubs.GetOrCreate(eventID)
	ch, unsubscribe := hub.subscribe(lb)
	cancel := func() {
		unsubscribe()
		s.hubs.DeleteIfEmpty(eventID)
	}
	return ch, cancel, nil
}

func (s *BingoService) publish(ctx context.Context, eventID string) {
	hub, ok := s.hubs.Get(eventID)
	if !ok {
		return
	}
	lb, err := s.Leaderboard(ctx, eventID)
	if err != nil {
		log.Printf("leaderboard for event %s: %v", eventID, err)
		return
	}
	hub.publish(lb)
}

func (s *BingoService) eventState(ctx context.Context, eventID string) ([]domain.Participant, []domain.Card, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, nil, err
	}
	participants, err := s.cards.ParticipantsByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	cards, err := s.cards.CardsByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	return participants, cards, nil
}

func (s *BingoService) lookupUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrUnknownParticipant
	}
	return user, err
}

func (s *BingoService) withIdentity(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	user, err := s.lookupUser(ctx, p.UserID)
	if err != nil {
		return domain.Participant{}, err
	}
	p.Identity = identityOf(user)
	return p, nil
}

func viewOf(card domain.Card) CardView {
	lines := bingo.WinningLines(card)
	return CardView{
		Card:      card,
		Bingo:     len(lines) > 0,
		Lines:     lines,
		Completed: len(card.Completions),
	}
}

func identityOf(user domain.User) domain.Identity {
	return domain.Identity{Name: user.Name, AvatarURL: user.AvatarURL}
}

// validateAnswers checks answers against the event survey and returns them
// with blank values removed.
func validateAnswers(event domain.Event, answers []domain.SurveyAnswer) ([]domain.SurveyAnswer, error) {
	seen := make(map[string]bool, len(answers))
	out := make([]domain.SurveyAnswer, 0, len(answers))
	for _, a := range answers {
		question, ok := event.Question(a.QuestionID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %q", domain.ErrInvalidAnswer, a.QuestionID)
		}
		if seen[a.QuestionID] {
			return nil, fmt.Errorf("%w: question %q answered twice", domain.ErrInvalidAnswer, a.QuestionID)
		}
		seen[a.QuestionID] = true

		values := make([]string, 0, len(a.Values))
		for _, v := range a.Values {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: question %q has no answer", domain.ErrInvalidAnswer, a.QuestionID)
		}
		if question.Kind == domain.SingleChoice && len(values) > 1 {
			return nil, fmt.Errorf("%w: question %q accepts a single answer", domain.ErrInvalidAnswer, a.QuestionID)
		}
		out = append(out, domain.SurveyAnswer{QuestionID: a.QuestionID, Values: values})
	}
	return out, nil
}

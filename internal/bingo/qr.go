package bingo

import (
	"encoding/json"
	"strings"
	"time"

	"icebreaker-bingo/internal/domain"
)

const (
	// DefaultFreshness is how long an issued QR payload stays valid.
	DefaultFreshness = 5 * time.Minute
	// ClockSkewTolerance bounds how far in the future a payload may be issued
	// relative to the checking device.
	ClockSkewTolerance = 30 * time.Second
)

// Payload is the message rendered as a QR code by the card owner and scanned
// by the verifier. It is not signed; freshness and the match check in
// Complete are the only safeguards.
type Payload struct {
	CardID        string
	TaskID        string
	ParticipantID string
	IssuedAt      time.Time
}

type wirePayload struct {
	CardID        *string `json:"cardId"`
	TaskID        *string `json:"taskId"`
	ParticipantID *string `json:"participantId"`
	IssuedAt      *int64  `json:"issuedAt"`
}

// NewPayload builds a payload for the given card, task and performer.
func NewPayload(cardID, taskID, participantID string, issuedAt time.Time) Payload {
	return Payload{
		CardID:        cardID,
		TaskID:        taskID,
		ParticipantID: participantID,
		IssuedAt:      issuedAt,
	}
}

// EncodePayload serializes p as compact JSON with issuedAt in unix milliseconds.
func EncodePayload(p Payload) ([]byte, error) {
	ms := p.IssuedAt.UnixMilli()
	return json.Marshal(wirePayload{
		CardID:        &p.CardID,
		TaskID:        &p.TaskID,
		ParticipantID: &p.ParticipantID,
		IssuedAt:      &ms,
	})
}

// DecodePayload parses raw scanner output. All four fields must be present
// with the right types, otherwise ErrMalformedPayload is returned.
func DecodePayload(raw []byte) (Payload, error) {
	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return Payload{}, domain.ErrMalformedPayload
	}
	if w.CardID == nil || w.TaskID == nil || w.ParticipantID == nil || w.IssuedAt == nil {
		return Payload{}, domain.ErrMalformedPayload
	}
	if strings.TrimSpace(*w.CardID) == "" || strings.TrimSpace(*w.TaskID) == "" || strings.TrimSpace(*w.ParticipantID) == "" {
		return Payload{}, domain.ErrMalformedPayload
	}
	return Payload{
		CardID:        *w.CardID,
		TaskID:        *w.TaskID,
		ParticipantID: *w.ParticipantID,
		IssuedAt:      time.UnixMilli(*w.IssuedAt),
	}, nil
}

// IsFresh reports whether the payload is usable at now. A payload older than
// window is stale; a payload from the future is accepted up to
// ClockSkewTolerance. A non-positive window falls back to DefaultFreshness.
func (p Payload) IsFresh(now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultFreshness
	}
	age := now.Sub(p.IssuedAt)
	if age < 0 {
		return -age <= ClockSkewTolerance
	}
	return age <= window
}

package domain

import "errors"

var (
	// ErrInvalidGridSize is returned when a card is built from anything but 25 tasks.
	ErrInvalidGridSize = errors.New("event must define exactly 25 tasks")
	// ErrMalformedPayload indicates a scanned QR payload could not be parsed.
	ErrMalformedPayload = errors.New("malformed qr payload")
	// ErrExpiredPayload indicates a QR payload is outside its freshness window.
	ErrExpiredPayload = errors.New("qr payload expired")
	// ErrPayloadMismatch indicates the QR payload participant does not own the card.
	ErrPayloadMismatch = errors.New("qr payload does not belong to card owner")
	// ErrUnknownTask is returned when a task is not on the card.
	ErrUnknownTask = errors.New("task not found on card")
	// ErrAlreadyCompleted signals an idempotent rejection of a repeated completion.
	ErrAlreadyCompleted = errors.New("task already completed")
	// ErrNotAuthorizedVerifier is returned when the verifier is not a match for the task.
	ErrNotAuthorizedVerifier = errors.New("verifier is not a match for this task")
	// ErrUnknownParticipant is returned when an identity cannot be resolved.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrEventNotFound indicates the event could not be loaded.
	ErrEventNotFound = errors.New("event not found")
	// ErrCardNotFound indicates the card could not be loaded.
	ErrCardNotFound = errors.New("card not found")
	// ErrParticipantNotFound indicates the participant could not be loaded.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrUserNotFound is returned by user directories on a lookup miss.
	ErrUserNotFound = errors.New("user not found")
	// ErrEventFull is returned when the participant limit is reached.
	ErrEventFull = errors.New("event is full")
	// ErrEventClosed is returned when the event no longer accepts participants.
	ErrEventClosed = errors.New("event is not accepting participants")
	// ErrAlreadyJoined is returned when a user joins the same event twice.
	ErrAlreadyJoined = errors.New("user already joined event")
	// ErrInvalidAnswer indicates a survey answer does not fit the event's survey.
	ErrInvalidAnswer = errors.New("invalid survey answer")
	// ErrConcurrentUpdate is returned when optimistic retries are exhausted.
	ErrConcurrentUpdate = errors.New("concurrent update, retry later")
)

// IsBenign reports whether err is a conflict signal callers may treat as a no-op.
func IsBenign(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted)
}

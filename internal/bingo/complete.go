package bingo

import (
	"time"

	"icebreaker-bingo/internal/domain"
)

// Complete validates a completion of taskID on card and appends the record.
// Checks run in order: the task must be on the card, must not be completed
// yet, and the verifier must be a recorded match for that cell other than the
// performer. The returned task carries the point value to award.
func Complete(card *domain.Card, taskID, performerID, verifierID string, now time.Time) (domain.CompletionRecord, domain.Task, error) {
	idx := card.CellIndex(taskID)
	if idx < 0 {
		return domain.CompletionRecord{}, domain.Task{}, domain.ErrUnknownTask
	}
	cell := card.Cells[idx]
	if _, done := card.Completion(taskID); done {
		return domain.CompletionRecord{}, cell.Task, domain.ErrAlreadyCompleted
	}
	if verifierID == "" || verifierID == performerID || !cell.HasMatch(verifierID) {
		return domain.CompletionRecord{}, cell.Task, domain.ErrNotAuthorizedVerifier
	}

	record := domain.CompletionRecord{
		TaskID:      taskID,
		PerformerID: performerID,
		VerifierID:  verifierID,
		CompletedAt: now,
	}
	card.Completions = append(card.Completions, record)
	return record, cell.Task, nil
}

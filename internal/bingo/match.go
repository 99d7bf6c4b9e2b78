package bingo

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"icebreaker-bingo/internal/domain"
)

// categoryQuestions ties task categories to the survey question whose any
// answer satisfies them.
var categoryQuestions = map[string]string{
	"tech-stack": "tech-stack",
	"dev-role":   "role",
	"interests":  "interests",
}

// Matches reports whether a single survey answer satisfies the task: either the
// task's category maps to the answered question, or the task text and the
// joined answer text contain one another ignoring case.
func Matches(task domain.Task, answer domain.SurveyAnswer) bool {
	if questionID, ok := categoryQuestions[task.Category]; ok && questionID == answer.QuestionID {
		return true
	}

	value := fold(answer.Text())
	if strings.TrimSpace(value) == "" {
		return false
	}
	text := fold(task.Text)
	if text == "" {
		return false
	}
	return strings.Contains(text, value) || strings.Contains(value, text)
}

// MatchingAnswers returns every answer that satisfies the task, in answer order.
func MatchingAnswers(task domain.Task, answers []domain.SurveyAnswer) []domain.SurveyAnswer {
	var out []domain.SurveyAnswer
	for _, a := range answers {
		if Matches(task, a) {
			out = append(out, a)
		}
	}
	return out
}

// IndexCard evaluates the joiner's answers against every cell of card and
// appends a Match where at least one answer fits and the joiner is not yet
// matched. The owner of the card is never matched on it. It returns the
// number of matches appended.
func IndexCard(card *domain.Card, joiner domain.Participant, now time.Time) int {
	if card.ParticipantID == joiner.ID {
		return 0
	}
	added := 0
	for i := range card.Cells {
		cell := &card.Cells[i]
		if cell.HasMatch(joiner.ID) {
			continue
		}
		answers := MatchingAnswers(cell.Task, joiner.Answers)
		if len(answers) == 0 {
			continue
		}
		cell.Matches = append(cell.Matches, domain.Match{
			ParticipantID: joiner.ID,
			Identity:      joiner.Identity,
			Answers:       answers,
			MatchedAt:     now,
		})
		added++
	}
	return added
}

func fold(s string) string {
	// cases.Caser keeps state, so one per call.
	return cases.Fold().String(s)
}

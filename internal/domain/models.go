package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// GridSize is the width and height of every bingo card.
const GridSize = 5

// CardCells is the number of cells on a card.
const CardCells = GridSize * GridSize

// Task is a bingo task defined by the event template.
type Task struct {
	ID       string `json:"id" yaml:"id"`
	Text     string `json:"text" yaml:"text"`
	Category string `json:"category" yaml:"category"`
	Points   int    `json:"points" yaml:"points"`
}

// QuestionKind distinguishes single from multiple choice survey questions.
type QuestionKind string

const (
	SingleChoice   QuestionKind = "single"
	MultipleChoice QuestionKind = "multiple"
)

// SurveyQuestion is asked to every participant when joining an event.
type SurveyQuestion struct {
	ID      string       `json:"id" yaml:"id"`
	Text    string       `json:"text" yaml:"text"`
	Kind    QuestionKind `json:"type" yaml:"type"`
	Options []string     `json:"options" yaml:"options"`
}

// SurveyAnswer holds one participant's answer to a question. Single choice
// answers carry exactly one value.
type SurveyAnswer struct {
	QuestionID string   `json:"questionId"`
	Values     []string `json:"answer"`
}

// Text joins the answer values with a single space.
func (a SurveyAnswer) Text() string {
	return strings.Join(a.Values, " ")
}

// UnmarshalJSON accepts the answer either as a string or as a list of strings.
func (a *SurveyAnswer) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID string          `json:"questionId"`
		Answer     json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.QuestionID = raw.QuestionID
	a.Values = nil
	if len(raw.Answer) == 0 || string(raw.Answer) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.Answer, &single); err == nil {
		a.Values = []string{single}
		return nil
	}
	return json.Unmarshal(raw.Answer, &a.Values)
}

// Event is an icebreaker event with its fixed task list and survey.
type Event struct {
	ID              string           `json:"id" yaml:"id"`
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description" yaml:"description"`
	Location        string           `json:"location" yaml:"location"`
	CreatedBy       string           `json:"createdBy" yaml:"createdBy"`
	StartsAt        time.Time        `json:"startsAt" yaml:"startsAt"`
	EndsAt          time.Time        `json:"endsAt" yaml:"endsAt"`
	IsActive        bool             `json:"isActive" yaml:"isActive"`
	MaxParticipants int              `json:"maxParticipants" yaml:"maxParticipants"` // zero means unlimited
	Tasks           []Task           `json:"tasks" yaml:"tasks"`
	SurveyQuestions []SurveyQuestion `json:"surveyQuestions" yaml:"surveyQuestions"`
}

// AcceptsJoins reports whether participants may still join at now.
func (e Event) AcceptsJoins(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	return e.EndsAt.IsZero() || !now.After(e.EndsAt)
}

// Question returns the survey question with the given id.
func (e Event) Question(id string) (SurveyQuestion, bool) {
	for _, q := range e.SurveyQuestions {
		if q.ID == id {
			return q, true
		}
	}
	return SurveyQuestion{}, false
}

// User is the external identity record.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Identity is the display snapshot of a participant stored with matches.
type Identity struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Participant is a user's membership in one event.
type Participant struct {
	ID        string         `json:"id"`
	EventID   string         `json:"eventId"`
	UserID    string         `json:"userId"`
	CardID    string         `json:"cardId"`
	Identity  Identity       `json:"identity"`
	Answers   []SurveyAnswer `json:"answers"`
	Points    int            `json:"points"`
	JoinedAt  time.Time      `json:"joinedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Match records another participant whose answers satisfy a cell's task.
type Match struct {
	ParticipantID string         `json:"participantId"`
	Identity      Identity       `json:"identity"`
	Answers       []SurveyAnswer `json:"answers"`
	MatchedAt     time.Time      `json:"matchedAt"`
}

// Cell is one task on a card together with its matches.
type Cell struct {
	Task    Task    `json:"task"`
	Matches []Match `json:"matches"`
}

// HasMatch reports whether participantID is already matched on the cell.
func (c Cell) HasMatch(participantID string) bool {
	for _, m := range c.Matches {
		if m.ParticipantID == participantID {
			return true
		}
	}
	return false
}

// CompletionRecord is the immutable proof that a task was performed.
type CompletionRecord struct {
	TaskID      string    `json:"taskId"`
	PerformerID string    `json:"performerId"`
	VerifierID  string    `json:"verifierId"`
	CompletedAt time.Time `json:"completedAt"`
}

// Card is a participant's bingo card. Cell order is fixed; index i sits at
// row i/GridSize, column i%GridSize.
type Card struct {
	ID            string             `json:"id"`
	EventID       string             `json:"eventId"`
	ParticipantID string             `json:"participantId"`
	Cells         []Cell             `json:"cells"`
	Completions   []CompletionRecord `json:"completions"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// CellIndex returns the position of the task on the card, or -1.
func (c Card) CellIndex(taskID string) int {
	for i, cell := range c.Cells {
		if cell.Task.ID == taskID {
			return i
		}
	}
	return -1
}

// Completion returns the completion record for taskID, if any.
func (c Card) Completion(taskID string) (CompletionRecord, bool) {
	for _, r := range c.Completions {
		if r.TaskID == taskID {
			return r, true
		}
	}
	return CompletionRecord{}, false
}

// CompletedTaskIDs lists the ids of completed tasks in completion order.
func (c Card) CompletedTaskIDs() []string {
	ids := make([]string, 0, len(c.Completions))
	for _, r := range c.Completions {
		ids = append(ids, r.TaskID)
	}
	return ids
}

// Clone returns a deep copy so that stores can hand out cards without sharing slices.
func (c Card) Clone() Card {
	out := c
	out.Cells = make([]Cell, len(c.Cells))
	for i, cell := range c.Cells {
		out.Cells[i] = Cell{Task: cell.Task}
		if cell.Matches != nil {
			out.Cells[i].Matches = make([]Match, len(cell.Matches))
			copy(out.Cells[i].Matches, cell.Matches)
		}
	}
	if c.Completions != nil {
		out.Completions = make([]CompletionRecord, len(c.Completions))
		copy(out.Completions, c.Completions)
	}
	return out
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Points        int    `json:"points"`
	Completed     int    `json:"completed"`
	Bingo         bool   `json:"bingo"`
}

// Leaderboard captures the ordered scoreboard for an event.
type Leaderboard struct {
	EventID   string             `json:"eventId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// EventStats summarizes progress across all cards of an event.
type EventStats struct {
	EventID               string  `json:"eventId"`
	Participants          int     `json:"participants"`
	CompletedTasks        int     `json:"completedTasks"`
	Bingos                int     `json:"bingos"`
	AverageCompletionRate float64 `json:"averageCompletionRate"` // percent of cells completed per card
}

// Package templates ships the built-in event templates an organizer can
// start an event from.
package templates

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
	"icebreaker-bingo/internal/domain"
)

//go:embed templates.yaml
var builtin []byte

// ErrTemplateNotFound is returned by Get for an unknown template id.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a reusable survey plus task list.
type Template struct {
	ID              string                  `yaml:"id"`
	Name            string                  `yaml:"name"`
	Description     string                  `yaml:"description"`
	SurveyQuestions []domain.SurveyQuestion `yaml:"surveyQuestions"`
	Tasks           []domain.Task           `yaml:"bingoTasks"`
}

// Load parses the built-in templates.
func Load() ([]Template, error) {
	return Parse(builtin)
}

// Parse decodes and validates a YAML list of templates.
func Parse(data []byte) ([]Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []Template
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for _, t := range out {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Get returns the built-in template with the given id.
func Get(id string) (Template, error) {
	all, err := Load()
	if err != nil {
		return Template{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

// Validate checks the template can back a card: exactly 25 tasks with unique
// ids and survey questions with options.
func (t Template) Validate() error {
	if len(t.Tasks) != domain.CardCells {
		return fmt.Errorf("template %s: %w", t.ID, domain.ErrInvalidGridSize)
	}
	seen := make(map[string]struct{}, len(t.Tasks))
	for _, task := range t.Tasks {
		if task.ID == "" {
			return fmt.Errorf("template %s: task without id", t.ID)
		}
		if _, dup := seen[task.ID]; dup {
			return fmt.Errorf("template %s: duplicate task %s", t.ID, task.ID)
		}
		seen[task.ID] = struct{}{}
	}
	for _, q := range t.SurveyQuestions {
		if q.Kind != domain.SingleChoice && q.Kind != domain.MultipleChoice {
			return fmt.Errorf("template %s: question %s has unknown type %q", t.ID, q.ID, q.Kind)
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("template %s: question %s has no options", t.ID, q.ID)
		}
	}
	return nil
}

// NewEvent instantiates an active event from the template.
func (t Template) NewEvent(id, name string, now time.Time) domain.Event {
	if name == "" {
		name = t.Name
	}
	tasks := make([]domain.Task, len(t.Tasks))
	copy(tasks, t.Tasks)
	questions := make([]domain.SurveyQuestion, len(t.SurveyQuestions))
	for i, q := range t.SurveyQuestions {
		q.Options = append([]string(nil), q.Options...)
		questions[i] = q
	}
	return domain.Event{
		ID:              id,
		Name:            name,
		Description:     t.Description,
		StartsAt:        now,
		IsActive:        true,
		Tasks:           tasks,
		SurveyQuestions: questions,
	}
}

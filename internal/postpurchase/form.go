package postpurchase

import (
	"errors"
	"fmt"
)

var (
	ErrFormComplete  = errors.New("form already complete")
	ErrInvalidChoice = errors.New("choice is not one of the question's options")
)

// Question is one step of the onboarding questionnaire. Single-choice only.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// DefaultQuestions is the fixed intake question list.
var DefaultQuestions = []Question{
	{
		ID:      "genre",
		Prompt:  "What genre best describes your music?",
		Choices: []string{"Hip-Hop", "Pop", "Electronic", "Rock", "R&B", "Other"},
	},
	{
		ID:      "release-cadence",
		Prompt:  "How often do you release new music?",
		Choices: []string{"Monthly", "Every few months", "Once a year", "This is my first release"},
	},
	{
		ID:      "goal",
		Prompt:  "What is your main goal for this campaign?",
		Choices: []string{"Grow my audience", "Land playlist placements", "Promote a new release", "Build industry credibility"},
	},
	{
		ID:      "heard-from",
		Prompt:  "How did you hear about us?",
		Choices: []string{"Search", "Social media", "A friend", "An artist I follow"},
	},
}

// Form is a strictly linear wizard over a fixed question list. There is no
// branching: answering always advances one position, Back only rewinds the
// position and never clears an answer already given.
type Form struct {
	questions []Question
	answers   []string
	pos       int
}

func NewForm(questions []Question) *Form {
	return &Form{
		questions: questions,
		answers:   make([]string, len(questions)),
	}
}

// Current returns the question at the cursor, or false when past the end.
func (f *Form) Current() (Question, bool) {
	if f.pos >= len(f.questions) {
		return Question{}, false
	}
	return f.questions[f.pos], true
}

// Answer records a choice for the current question and advances. Re-answering
// a rewound question overwrites only that answer; later answers stay.
func (f *Form) Answer(choice string) error {
	if f.pos >= len(f.questions) {
		return ErrFormComplete
	}

	q := f.questions[f.pos]
	valid := false
	for _, c := range q.Choices {
		if c == choice {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %q for question %q", ErrInvalidChoice, choice, q.ID)
	}

	f.answers[f.pos] = choice
	f.pos++
	return nil
}

// Back rewinds the cursor one position. It is position-only; answers are
// never un-answered.
func (f *Form) Back() {
	if f.pos > 0 {
		f.pos--
	}
}

// Complete reports whether every question has an answer.
func (f *Form) Complete() bool {
	for _, a := range f.answers {
		if a == "" {
			return false
		}
	}
	return true
}

// Answers returns question id → chosen answer for the answered questions.
func (f *Form) Answers() map[string]string {
	out := make(map[string]string, len(f.questions))
	for i, a := range f.answers {
		if a != "" {
			out[f.questions[i].ID] = a
		}
	}
	return out
}

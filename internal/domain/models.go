package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// QuestionType selects how a question is answered and graded.
type QuestionType string

const (
	SingleSelect QuestionType = "single_select"
	MultiSelect  QuestionType = "multi_select"
)

// ChoiceIndex is the semantic label of a choice ("A", "B", or a positional key like "0").
// Numeric labels are normalised to their decimal text so "0" and 0 compare equal.
type ChoiceIndex string

func (c *ChoiceIndex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ChoiceIndex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("choice index must be a string or number: %w", err)
	}
	*c = ChoiceIndex(n.String())
	return nil
}

func (c *ChoiceIndex) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("choice index must be a scalar, got %v", node.Tag)
	}
	*c = ChoiceIndex(node.Value)
	return nil
}

// Choice is one selectable option. Its display position is its offset in Question.Choices.
type Choice struct {
	Index ChoiceIndex `json:"index" yaml:"index" bson:"index"`
	Text  string      `json:"text" yaml:"text" bson:"text"`
}

// Question is an immutable generated question owned by the question store.
type Question struct {
	ID             string        `json:"id" yaml:"id" bson:"id"`
	Text           string        `json:"questionText" yaml:"questionText" bson:"questionText"`
	Type           QuestionType  `json:"type,omitempty" yaml:"type" bson:"type,omitempty"`
	Choices        []Choice      `json:"choices" yaml:"choices" bson:"choices"`
	CorrectAnswers []ChoiceIndex `json:"correctAnswers,omitempty" yaml:"correctAnswers" bson:"correctAnswers"`
	Explanation    string        `json:"explanation,omitempty" yaml:"explanation" bson:"explanation,omitempty"`
}

// EffectiveType treats a missing type as single select.
func (q Question) EffectiveType() QuestionType {
	if q.Type == MultiSelect {
		return MultiSelect
	}
	return SingleSelect
}

// IndexAt maps a display position to the choice's semantic index.
func (q Question) IndexAt(position int) (ChoiceIndex, bool) {
	if position < 0 || position >= len(q.Choices) {
		return "", false
	}
	return q.Choices[position].Index, true
}

// CorrectPositions returns the display positions whose index is a correct answer.
func (q Question) CorrectPositions() []int {
	correct := make(map[ChoiceIndex]struct{}, len(q.CorrectAnswers))
	for _, idx := range q.CorrectAnswers {
		correct[idx] = struct{}{}
	}
	positions := make([]int, 0, len(q.CorrectAnswers))
	for pos, choice := range q.Choices {
		if _, ok := correct[choice.Index]; ok {
			positions = append(positions, pos)
		}
	}
	return positions
}

// Validate checks the structural invariants of a generated question.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	}
	if q.Type != "" && q.Type != SingleSelect && q.Type != MultiSelect {
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidQuestion, q.ID, q.Type)
	}
	indexes := make(map[ChoiceIndex]struct{}, len(q.Choices))
	for _, choice := range q.Choices {
		if _, dup := indexes[choice.Index]; dup {
			return fmt.Errorf("%w: %s has duplicate choice index %q", ErrInvalidQuestion, q.ID, choice.Index)
		}
		indexes[choice.Index] = struct{}{}
	}
	for _, idx := range q.CorrectAnswers {
		if _, ok := indexes[idx]; !ok {
			return fmt.Errorf("%w: %s lists correct answer %q that is not a choice", ErrInvalidQuestion, q.ID, idx)
		}
	}
	switch q.EffectiveType() {
	case SingleSelect:
		if len(q.CorrectAnswers) != 1 {
			return fmt.Errorf("%w: single select %s needs exactly one correct answer, has %d", ErrInvalidQuestion, q.ID, len(q.CorrectAnswers))
		}
	case MultiSelect:
		if len(q.CorrectAnswers) == 0 {
			return fmt.Errorf("%w: multi select %s needs at least one correct answer", ErrInvalidQuestion, q.ID)
		}
	}
	return nil
}

// DocumentStatus mirrors the processing pipeline's lifecycle for an uploaded PDF.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is an uploaded PDF together with its generated questions, ordered by creation.
type Document struct {
	ID        string         `json:"id" yaml:"id"`
	Title     string         `json:"title" yaml:"title"`
	Status    DocumentStatus `json:"status" yaml:"status"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
	Questions []Question     `json:"questions" yaml:"questions"`
}

// QuestionMap indexes the document's questions by id.
func (d Document) QuestionMap() map[string]Question {
	m := make(map[string]Question, len(d.Questions))
	for _, q := range d.Questions {
		m[q.ID] = q
	}
	return m
}

// AnswerKind tags which variant of Answer is populated.
type AnswerKind string

const (
	AnswerSingle AnswerKind = "single"
	AnswerMulti  AnswerKind = "multi"
)

// Answer is a tagged union: a single choice position or a set of choice positions.
type Answer struct {
	Kind      AnswerKind `json:"kind" bson:"kind"`
	Position  int        `json:"position" bson:"position"`
	Positions []int      `json:"positions,omitempty" bson:"positions,omitempty"`
}

// SingleAnswer records one selected position.
func SingleAnswer(position int) Answer {
	return Answer{Kind: AnswerSingle, Position: position}
}

// MultiAnswer records a set of positions. Duplicates are dropped and the set is kept sorted.
func MultiAnswer(positions ...int) Answer {
	seen := make(map[int]struct{}, len(positions))
	set := make([]int, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		set = append(set, p)
	}
	sort.Ints(set)
	return Answer{Kind: AnswerMulti, Positions: set}
}

// Toggle adds position to a multi answer if absent and removes it if present.
// A non-multi receiver is treated as an empty set.
func (a Answer) Toggle(position int) Answer {
	if a.Kind != AnswerMulti {
		return MultiAnswer(position)
	}
	next := make([]int, 0, len(a.Positions)+1)
	removed := false
	for _, p := range a.Positions {
		if p == position {
			removed = true
			continue
		}
		next = append(next, p)
	}
	if !removed {
		next = append(next, position)
	}
	return MultiAnswer(next...)
}

// Selected lists the chosen positions regardless of kind.
func (a Answer) Selected() []int {
	switch a.Kind {
	case AnswerSingle:
		return []int{a.Position}
	case AnswerMulti:
		out := make([]int, len(a.Positions))
		copy(out, a.Positions)
		return out
	}
	return nil
}

// IsEmpty reports whether the answer selects nothing.
func (a Answer) IsEmpty() bool {
	switch a.Kind {
	case AnswerSingle:
		return false
	case AnswerMulti:
		return len(a.Positions) == 0
	}
	return true
}

func (a Answer) String() string {
	if a.Kind == AnswerSingle {
		return strconv.Itoa(a.Position)
	}
	return fmt.Sprint(a.Positions)
}

// Result is the terminal score of a session.
type Result struct {
	Score          int `json:"score" bson:"score"`
	CorrectCount   int `json:"correctCount" bson:"correctCount"`
	TotalQuestions int `json:"totalQuestions" bson:"totalQuestions"`
}

// Session is one exam attempt over a fixed, ordered subset of a document's questions.
type Session struct {
	ID                   string            `json:"id" bson:"_id"`
	DocumentID           string            `json:"documentId" bson:"documentId"`
	QuestionIDs          []string          `json:"questionIds" bson:"questionIds"`
	Answers              map[string]Answer `json:"answers" bson:"answers"`
	TimerEnabled         bool              `json:"timerEnabled" bson:"timerEnabled"`
	TimerMinutes         int               `json:"timerMinutes,omitempty" bson:"timerMinutes,omitempty"`
	TimerStartedAt       *time.Time        `json:"timerStartedAt,omitempty" bson:"timerStartedAt,omitempty"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex" bson:"currentQuestionIndex"`
	StartedAt            time.Time         `json:"startedAt" bson:"startedAt"`
	CompletedAt          *time.Time        `json:"completedAt" bson:"completedAt"`
	Result               *Result           `json:"result,omitempty" bson:"result,omitempty"`
}

// IsTerminal reports whether the session has been completed.
func (s Session) IsTerminal() bool {
	return s.CompletedAt != nil
}

// HasQuestion reports whether questionID belongs to this attempt.
func (s Session) HasQuestion(questionID string) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// AnsweredCount counts questions with a non-empty recorded answer.
func (s Session) AnsweredCount() int {
	n := 0
	for id, answer := range s.Answers {
		if !answer.IsEmpty() && s.HasQuestion(id) {
			n++
		}
	}
	return n
}

// Deadline returns when a timed session runs out.
func (s Session) Deadline() (time.Time, bool) {
	if !s.TimerEnabled || s.TimerStartedAt == nil {
		return time.Time{}, false
	}
	return s.TimerStartedAt.Add(time.Duration(s.TimerMinutes) * time.Minute), true
}

// SessionStatus filters sessions by lifecycle state.
type SessionStatus string

const (
	StatusAny       SessionStatus = ""
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// SessionFilter narrows a session listing. Zero Limit means no limit.
type SessionFilter struct {
	DocumentID string
	Status     SessionStatus
	Limit      int
}

// Matches applies the filter to one session.
func (f SessionFilter) Matches(s Session) bool {
	if f.DocumentID != "" && s.DocumentID != f.DocumentID {
		return false
	}
	switch f.Status {
	case StatusActive:
		return !s.IsTerminal()
	case StatusCompleted:
		return s.IsTerminal()
	}
	return true
}

// SessionSummary is a history row: the session plus its document's title.
type SessionSummary struct {
	Session       Session `json:"session"`
	DocumentTitle string  `json:"documentTitle"`
	AnsweredCount int     `json:"answeredCount"`
}

// QuestionOutcome is the per-question breakdown shown on the results view.
type QuestionOutcome struct {
	QuestionID       string `json:"questionId"`
	Answered         bool   `json:"answered"`
	Selected         []int  `json:"selected"`
	CorrectPositions []int  `json:"correctPositions"`
	Correct          bool   `json:"correct"`
}

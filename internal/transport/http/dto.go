package http

import (
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
)

type createSessionRequest struct {
	DocumentID    string `json:"documentId" binding:"required"`
	QuestionCount int    `json:"questionCount"`
	TimerEnabled  bool   `json:"timerEnabled"`
	TimerMinutes  int    `json:"timerMinutes"`
	// Randomize defaults to true when omitted.
	Randomize *bool `json:"randomize"`
}

type positionRequest struct {
	Position *int `json:"position" binding:"required"`
}

type cursorRequest struct {
	Index *int `json:"index" binding:"required"`
}

type sessionResponse struct {
	domain.Session
	Status        domain.SessionStatus `json:"status"`
	AnsweredCount int                  `json:"answeredCount"`
	// RemainingMs is omitted for sessions without a timer.
	RemainingMs *int64 `json:"remainingMs,omitempty"`
}

func newSessionResponse(session domain.Session, now time.Time) sessionResponse {
	resp := sessionResponse{
		Session:       session,
		Status:        domain.StatusActive,
		AnsweredCount: session.AnsweredCount(),
	}
	if session.IsTerminal() {
		resp.Status = domain.StatusCompleted
	}
	if remaining := app.Remaining(session, now); remaining != app.Untimed {
		if session.IsTerminal() {
			remaining = 0
		}
		resp.RemainingMs = millis(remaining)
	}
	return resp
}

type resumeResponse struct {
	Session              sessionResponse `json:"session"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	Completed            bool            `json:"completed"`
}

type summaryResponse struct {
	Session       sessionResponse `json:"session"`
	DocumentTitle string          `json:"documentTitle"`
}

type questionResponse struct {
	ID             string               `json:"id"`
	Text           string               `json:"questionText"`
	Type           domain.QuestionType  `json:"type"`
	Choices        []domain.Choice      `json:"choices"`
	CorrectAnswers []domain.ChoiceIndex `json:"correctAnswers,omitempty"`
	Explanation    string               `json:"explanation,omitempty"`
}

// newQuestionResponses hides the answer key until the session is completed.
func newQuestionResponses(questions []domain.Question, reveal bool) []questionResponse {
	out := make([]questionResponse, 0, len(questions))
	for _, q := range questions {
		r := questionResponse{ID: q.ID, Text: q.Text, Type: q.EffectiveType(), Choices: q.Choices}
		if reveal {
			r.CorrectAnswers = q.CorrectAnswers
			r.Explanation = q.Explanation
		}
		out = append(out, r)
	}
	return out
}

type answerResponse struct {
	QuestionID string        `json:"questionId"`
	Answer     domain.Answer `json:"answer"`
}

func millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

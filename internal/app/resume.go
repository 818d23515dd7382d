package app

import (
	"context"
	"time"

	"superexam-session-service/internal/domain"
)

// ResumeState is what a client needs to continue (or route away from) a session.
type ResumeState struct {
	Session              domain.Session `json:"session"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	AnsweredCount        int            `json:"answeredCount"`
	// Completed routes the caller to the results view instead of the answer view.
	Completed bool `json:"completed"`
	// Remaining is Untimed for sessions without a timer.
	Remaining time.Duration `json:"remaining"`
}

// LoadActiveSession reconstructs the in-progress view of a session from persisted state.
func (s *ExamService) LoadActiveSession(ctx context.Context, sessionID string) (ResumeState, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return ResumeState{}, err
	}
	state := ResumeState{
		Session:              session,
		CurrentQuestionIndex: clampIndex(session.CurrentQuestionIndex, len(session.QuestionIDs)),
		AnsweredCount:        session.AnsweredCount(),
		Completed:            session.IsTerminal(),
		Remaining:            Remaining(session, s.now()),
	}
	if state.Completed && session.TimerEnabled {
		state.Remaining = 0
	}
	return state, nil
}

// UpdateCurrentQuestion persists the navigation pointer. Last write wins; scoring never reads it.
func (s *ExamService) UpdateCurrentQuestion(ctx context.Context, sessionID string, index int) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		return domain.ErrSessionAlreadyCompleted
	}
	if index < 0 || index >= len(session.QuestionIDs) {
		return domain.ErrInvalidQuestionIndex
	}
	if err := s.sessions.UpdateCurrentQuestion(ctx, sessionID, index); err != nil {
		return s.dependency("update current question", err)
	}
	return nil
}

func clampIndex(index, n int) int {
	if n == 0 || index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}

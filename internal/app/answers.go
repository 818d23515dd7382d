package app

import (
	"context"

	"superexam-session-service/internal/domain"
)

// SetAnswer records the selected choice position for a single-select question, replacing any
// previous answer. Only the entry for questionID is written.
func (s *ExamService) SetAnswer(ctx context.Context, sessionID, questionID string, position int) error {
	_, question, known, err := s.answerable(ctx, sessionID, questionID)
	if err != nil {
		return err
	}
	if known && question.EffectiveType() != domain.SingleSelect {
		return domain.ErrAnswerTypeMismatch
	}
	return s.writeAnswer(ctx, sessionID, questionID, domain.SingleAnswer(position))
}

// ToggleAnswer adds position to a multi-select answer if absent, removes it if present.
// The set starts empty when nothing was recorded yet. It returns the recorded answer.
func (s *ExamService) ToggleAnswer(ctx context.Context, sessionID, questionID string, position int) (domain.Answer, error) {
	session, question, known, err := s.answerable(ctx, sessionID, questionID)
	if err != nil {
		return domain.Answer{}, err
	}
	if known && question.EffectiveType() != domain.MultiSelect {
		return domain.Answer{}, domain.ErrAnswerTypeMismatch
	}
	next := session.Answers[questionID].Toggle(position)
	if err := s.writeAnswer(ctx, sessionID, questionID, next); err != nil {
		return domain.Answer{}, err
	}
	return next, nil
}

// answerable loads the session and question and checks the session accepts answers.
// known is false when the question is no longer in the store; such answers are kept but graded wrong.
func (s *ExamService) answerable(ctx context.Context, sessionID, questionID string) (domain.Session, domain.Question, bool, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, domain.Question{}, false, err
	}
	if session.IsTerminal() {
		return domain.Session{}, domain.Question{}, false, domain.ErrSessionAlreadyCompleted
	}
	if !session.HasQuestion(questionID) {
		return domain.Session{}, domain.Question{}, false, domain.ErrQuestionNotInSession
	}
	questions, err := s.questionsOf(ctx, session.DocumentID)
	if err != nil {
		return domain.Session{}, domain.Question{}, false, err
	}
	question, ok := questions[questionID]
	return session, question, ok, nil
}

func (s *ExamService) writeAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer) error {
	if err := s.sessions.UpdateAnswer(ctx, sessionID, questionID, answer); err != nil {
		return s.dependency("update answer", err)
	}
	return nil
}

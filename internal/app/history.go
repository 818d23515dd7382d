package app

import (
	"context"
	"errors"

	"superexam-session-service/internal/domain"
)

const unknownDocumentTitle = "Unknown Document"

// ListSessions returns past and current attempts, newest first, with their document titles.
func (s *ExamService) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.SessionSummary, error) {
	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, s.dependency("list sessions", err)
	}

	titles := make(map[string]string)
	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		title, ok := titles[session.DocumentID]
		if !ok {
			title = unknownDocumentTitle
			doc, err := s.documents.GetDocument(ctx, session.DocumentID)
			switch {
			case err == nil && doc.Title != "":
				title = doc.Title
			case err != nil && !errors.Is(err, domain.ErrNotFound):
				return nil, s.dependency("get document", err)
			}
			titles[session.DocumentID] = title
		}
		summaries = append(summaries, domain.SessionSummary{
			Session:       session,
			DocumentTitle: title,
			AnsweredCount: session.AnsweredCount(),
		})
	}
	return summaries, nil
}

// SessionQuestions returns the session's questions in its fixed order. Questions no longer in
// the store are skipped.
func (s *ExamService) SessionQuestions(ctx context.Context, sessionID string) (domain.Session, []domain.Question, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	byID, err := s.questionsOf(ctx, session.DocumentID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	questions := make([]domain.Question, 0, len(session.QuestionIDs))
	for _, id := range session.QuestionIDs {
		if q, ok := byID[id]; ok {
			questions = append(questions, q)
		}
	}
	return session, questions, nil
}

// Review is the results view of a completed session.
type Review struct {
	Result   domain.Result            `json:"result"`
	Outcomes []domain.QuestionOutcome `json:"outcomes"`
}

// Review returns the per-question breakdown of a terminal session. The aggregate comes from the
// stored result, not from regrading.
func (s *ExamService) Review(ctx context.Context, sessionID string) (Review, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return Review{}, err
	}
	if !session.IsTerminal() {
		return Review{}, domain.ErrSessionNotCompleted
	}
	questions, err := s.questionsOf(ctx, session.DocumentID)
	if err != nil {
		return Review{}, err
	}
	_, outcomes := Grade(session, questions)
	return Review{Result: storedResult(session), Outcomes: outcomes}, nil
}

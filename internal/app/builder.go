package app

import (
	"context"

	"superexam-session-service/internal/domain"
)

// CreateSessionParams configures a new exam attempt.
type CreateSessionParams struct {
	DocumentID    string
	QuestionCount int
	TimerEnabled  bool
	TimerMinutes  int
	Randomize     bool
}

// CreateSession selects the question subset for a new attempt and persists the initial session.
// The ordering is fixed here; later reads never reshuffle.
func (s *ExamService) CreateSession(ctx context.Context, params CreateSessionParams) (domain.Session, error) {
	if params.QuestionCount <= 0 {
		return domain.Session{}, domain.ErrInvalidQuestionCount
	}
	if params.TimerEnabled && params.TimerMinutes <= 0 {
		return domain.Session{}, domain.ErrInvalidTimer
	}

	doc, err := s.loadDocument(ctx, params.DocumentID)
	if err != nil {
		return domain.Session{}, err
	}
	if len(doc.Questions) == 0 {
		return domain.Session{}, domain.ErrNoQuestionsAvailable
	}

	ids := uniqueQuestionIDs(doc.Questions)
	if params.Randomize {
		s.shuffle(ids)
	}
	count := params.QuestionCount
	if count > len(ids) {
		count = len(ids)
	}
	selected := make([]string, count)
	copy(selected, ids[:count])

	now := s.now()
	session := domain.Session{
		ID:          s.newID(),
		DocumentID:  params.DocumentID,
		QuestionIDs: selected,
		Answers:     map[string]domain.Answer{},
		StartedAt:   now,
	}
	if params.TimerEnabled {
		startedAt := now
		session.TimerEnabled = true
		session.TimerMinutes = params.TimerMinutes
		session.TimerStartedAt = &startedAt
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.Session{}, s.dependency("create session", err)
	}
	s.log.Debug().
		Str("session_id", session.ID).
		Str("document_id", session.DocumentID).
		Int("questions", len(session.QuestionIDs)).
		Bool("timer", session.TimerEnabled).
		Msg("session created")
	return session, nil
}

// shuffle is a Fisher-Yates shuffle over the engine's random source.
func (s *ExamService) shuffle(ids []string) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	for i := len(ids) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func uniqueQuestionIDs(questions []domain.Question) []string {
	seen := make(map[string]struct{}, len(questions))
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		ids = append(ids, q.ID)
	}
	return ids
}

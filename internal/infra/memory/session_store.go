package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"superexam-session-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository. Every read returns a
// deep copy so callers never share the stored maps.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
	}
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return clone(*session), nil
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	stored := clone(session)
	s.sessions[session.ID] = &stored
	return nil
}

func (s *SessionStore) UpdateAnswer(_ context.Context, sessionID, questionID string, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.activeLocked(sessionID)
	if err != nil {
		return err
	}
	if session.Answers == nil {
		session.Answers = make(map[string]domain.Answer)
	}
	session.Answers[questionID] = cloneAnswer(answer)
	return nil
}

func (s *SessionStore) UpdateCurrentQuestion(_ context.Context, sessionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.activeLocked(sessionID)
	if err != nil {
		return err
	}
	session.CurrentQuestionIndex = index
	return nil
}

func (s *SessionStore) Complete(_ context.Context, sessionID string, completedAt time.Time, result domain.Result) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false, domain.ErrSessionNotFound
	}
	if session.IsTerminal() {
		return clone(*session), false, nil
	}
	session.CompletedAt = &completedAt
	stored := result
	session.Result = &stored
	return clone(*session), true, nil
}

func (s *SessionStore) List(_ context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	s.mu.RLock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if filter.Matches(*session) {
			out = append(out, clone(*session))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *SessionStore) activeLocked(sessionID string) (*domain.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.IsTerminal() {
		return nil, domain.ErrSessionAlreadyCompleted
	}
	return session, nil
}

func clone(s domain.Session) domain.Session {
	out := s
	out.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	out.Answers = make(map[string]domain.Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = cloneAnswer(v)
	}
	if s.TimerStartedAt != nil {
		t := *s.TimerStartedAt
		out.TimerStartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return out
}

func cloneAnswer(a domain.Answer) domain.Answer {
	if a.Positions != nil {
		a.Positions = append([]int(nil), a.Positions...)
	}
	return a
}

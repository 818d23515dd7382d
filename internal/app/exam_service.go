package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"superexam-session-service/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DocumentRepository loads documents and their generated questions (read-only).
type DocumentRepository interface {
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
}

// SessionRepository abstracts how exam sessions are persisted (in-memory, Redis, MongoDB, Postgres).
//
// Implementations must make UpdateAnswer, UpdateCurrentQuestion and Complete conditional on the
// session still being active, atomically with the write itself.
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	Create(ctx context.Context, session domain.Session) error
	// UpdateAnswer overwrites the single answers entry for questionID.
	UpdateAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer) error
	UpdateCurrentQuestion(ctx context.Context, sessionID string, index int) error
	// Complete sets completedAt and result iff completedAt is currently unset. It returns the
	// persisted session and whether this call performed the transition.
	Complete(ctx context.Context, sessionID string, completedAt time.Time, result domain.Result) (domain.Session, bool, error)
	// List returns sessions matching filter, newest startedAt first.
	List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
}

// ExamService is the exam session engine. It holds no per-session state; every call reads
// and writes through the repositories.
type ExamService struct {
	sessions  SessionRepository
	documents DocumentRepository
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option customises an ExamService.
type Option func(*ExamService)

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *ExamService) { s.now = now }
}

// WithLogger attaches a logger; the default discards output.
func WithLogger(log zerolog.Logger) Option {
	return func(s *ExamService) { s.log = log.With().Str("component", "exam_service").Logger() }
}

// WithRand seeds the shuffle source.
func WithRand(rnd *rand.Rand) Option {
	return func(s *ExamService) { s.rnd = rnd }
}

// WithIDGenerator replaces uuid-based session ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *ExamService) { s.newID = newID }
}

func NewExamService(sessions SessionRepository, documents DocumentRepository, opts ...Option) *ExamService {
	s := &ExamService{
		sessions:  sessions,
		documents: documents,
		log:       zerolog.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now exposes the engine clock so driving loops share the same time source.
func (s *ExamService) Now() time.Time {
	return s.now()
}

func (s *ExamService) loadSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, s.dependency("get session", err)
	}
	return session, nil
}

func (s *ExamService) loadDocument(ctx context.Context, documentID string) (domain.Document, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, s.dependency("get document", err)
	}
	return doc, nil
}

// questionsOf indexes the document's questions. A document that no longer exists yields an
// empty map so its sessions can still be answered and graded.
func (s *ExamService) questionsOf(ctx context.Context, documentID string) (map[string]domain.Question, error) {
	doc, err := s.loadDocument(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn().Str("document_id", documentID).Msg("document missing, grading without questions")
		return map[string]domain.Question{}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.QuestionMap(), nil
}

func (s *ExamService) dependency(op string, err error) error {
	wrapped := domain.Dependency(op, err)
	if wrapped != err {
		s.log.Error().Err(err).Str("op", op).Msg("dependency failure")
	}
	return wrapped
}

package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/memory"
)

var t0 = time.Date(2025, 4, 7, 14, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubDocuments is a mutable app.DocumentRepository with failure injection.
type stubDocuments struct {
	mu   sync.Mutex
	docs map[string]domain.Document
	err  error
}

func newStubDocuments(docs ...domain.Document) *stubDocuments {
	s := &stubDocuments{docs: make(map[string]domain.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *stubDocuments) GetDocument(_ context.Context, documentID string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Document{}, s.err
	}
	doc, ok := s.docs[documentID]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *stubDocuments) remove(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
}

func (s *stubDocuments) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type harness struct {
	service *app.ExamService
	store   *memory.SessionStore
	docs    *stubDocuments
	clock   *fakeClock
}

func newHarness(t *testing.T, docs ...domain.Document) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewSessionStore(),
		docs:  newStubDocuments(docs...),
		clock: &fakeClock{now: t0},
	}
	h.service = app.NewExamService(h.store, h.docs,
		app.WithClock(h.clock.Now),
		app.WithRand(rand.New(rand.NewSource(42))),
	)
	return h
}

func (h *harness) create(t *testing.T, params app.CreateSessionParams) domain.Session {
	t.Helper()
	session, err := h.service.CreateSession(context.Background(), params)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func (h *harness) get(t *testing.T, sessionID string) domain.Session {
	t.Helper()
	session, err := h.store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return session
}

func choices(indexes ...domain.ChoiceIndex) []domain.Choice {
	out := make([]domain.Choice, len(indexes))
	for i, idx := range indexes {
		out[i] = domain.Choice{Index: idx, Text: "choice " + string(idx)}
	}
	return out
}

// scenarioDocument has three single-select questions and one multi-select question (q4, correct A and C).
func scenarioDocument() domain.Document {
	return domain.Document{
		ID:    "doc-exam",
		Title: "Operating systems midterm",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.SingleSelect, Choices: choices("A", "B", "C", "D"), CorrectAnswers: []domain.ChoiceIndex{"A"}},
			{ID: "q2", Type: domain.SingleSelect, Choices: choices("A", "B", "C", "D"), CorrectAnswers: []domain.ChoiceIndex{"C"}},
			{ID: "q3", Type: domain.SingleSelect, Choices: choices("A", "B", "C", "D"), CorrectAnswers: []domain.ChoiceIndex{"B"}},
			{ID: "q4", Type: domain.MultiSelect, Choices: choices("A", "B", "C"), CorrectAnswers: []domain.ChoiceIndex{"A", "C"}},
		},
	}
}

// numberedDocument has n single-select questions q1..qn, each with A correct.
func numberedDocument(id string, n int) domain.Document {
	doc := domain.Document{ID: id, Title: "Numbered " + id}
	for i := 1; i <= n; i++ {
		doc.Questions = append(doc.Questions, domain.Question{
			ID:             fmt.Sprintf("q%d", i),
			Choices:        choices("A", "B"),
			CorrectAnswers: []domain.ChoiceIndex{"A"},
		})
	}
	return doc
}

// failingStore breaks selected repository calls.
type failingStore struct {
	app.SessionRepository
	createErr   error
	completeErr error
}

func (s *failingStore) Create(ctx context.Context, session domain.Session) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.SessionRepository.Create(ctx, session)
}

func (s *failingStore) Complete(ctx context.Context, sessionID string, completedAt time.Time, result domain.Result) (domain.Session, bool, error) {
	if s.completeErr != nil {
		return domain.Session{}, false, s.completeErr
	}
	return s.SessionRepository.Complete(ctx, sessionID, completedAt, result)
}

var errStorageDown = errors.New("connection refused")

package app_test

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/memory"
)

func TestCreateSessionClampsAndNeverDuplicates(t *testing.T) {
	doc := numberedDocument("doc-8", 8)
	h := newHarness(t, doc)
	valid := make(map[string]bool)
	for _, q := range doc.Questions {
		valid[q.ID] = true
	}

	for count := 1; count <= 12; count++ {
		for _, randomize := range []bool{false, true} {
			session := h.create(t, app.CreateSessionParams{DocumentID: doc.ID, QuestionCount: count, Randomize: randomize})
			want := count
			if want > 8 {
				want = 8
			}
			if len(session.QuestionIDs) != want {
				t.Fatalf("count=%d randomize=%v: got %d questions, want %d", count, randomize, len(session.QuestionIDs), want)
			}
			seen := make(map[string]bool)
			for _, id := range session.QuestionIDs {
				if !valid[id] {
					t.Fatalf("question %s is not in the document", id)
				}
				if seen[id] {
					t.Fatalf("duplicate question %s in %v", id, session.QuestionIDs)
				}
				seen[id] = true
			}
		}
	}
}

func TestCreateSessionPreservesOrderWithoutRandomize(t *testing.T) {
	doc := numberedDocument("doc-6", 6)
	h := newHarness(t, doc)
	session := h.create(t, app.CreateSessionParams{DocumentID: doc.ID, QuestionCount: 6})
	want := []string{"q1", "q2", "q3", "q4", "q5", "q6"}
	if !reflect.DeepEqual(session.QuestionIDs, want) {
		t.Fatalf("got %v, want source order %v", session.QuestionIDs, want)
	}
}

func TestCreateSessionShufflesOnceAtCreation(t *testing.T) {
	doc := numberedDocument("doc-10", 10)
	h := newHarness(t, doc)

	orderings := make(map[string]int)
	firstPosition := make(map[string]int)
	const trials = 200
	for i := 0; i < trials; i++ {
		session := h.create(t, app.CreateSessionParams{DocumentID: doc.ID, QuestionCount: 10, Randomize: true})
		orderings[strings.Join(session.QuestionIDs, ",")]++
		firstPosition[session.QuestionIDs[0]]++

		stored := h.get(t, session.ID)
		if !reflect.DeepEqual(stored.QuestionIDs, session.QuestionIDs) {
			t.Fatalf("stored order %v differs from created %v", stored.QuestionIDs, session.QuestionIDs)
		}
	}
	if len(orderings) < trials/2 {
		t.Fatalf("expected mostly distinct orderings, got %d distinct of %d", len(orderings), trials)
	}
	// Every question should lead at least once in 200 uniform shuffles of 10.
	if len(firstPosition) != 10 {
		t.Fatalf("only %d distinct questions ever came first: %v", len(firstPosition), firstPosition)
	}
}

func TestCreateSessionInitialState(t *testing.T) {
	h := newHarness(t, scenarioDocument())

	timed := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 4, TimerEnabled: true, TimerMinutes: 20})
	if timed.TimerStartedAt == nil || !timed.TimerStartedAt.Equal(t0) || !timed.StartedAt.Equal(t0) {
		t.Fatalf("timer must start at creation: %+v", timed)
	}
	if timed.TimerMinutes != 20 || timed.IsTerminal() || len(timed.Answers) != 0 || timed.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected initial state %+v", timed)
	}

	untimed := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 4, TimerMinutes: 20})
	if untimed.TimerEnabled || untimed.TimerStartedAt != nil {
		t.Fatalf("untimed session must not start a timer: %+v", untimed)
	}
	if untimed.ID == timed.ID {
		t.Fatalf("session ids must be unique")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	empty := domain.Document{ID: "doc-empty", Title: "Still processing"}
	h := newHarness(t, scenarioDocument(), empty)

	cases := []struct {
		name   string
		params app.CreateSessionParams
		want   error
		kind   error
	}{
		{"zero count", app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 0}, domain.ErrInvalidQuestionCount, domain.ErrValidation},
		{"negative count", app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: -3}, domain.ErrInvalidQuestionCount, domain.ErrValidation},
		{"timer without minutes", app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 2, TimerEnabled: true}, domain.ErrInvalidTimer, domain.ErrValidation},
		{"missing document", app.CreateSessionParams{DocumentID: "nope", QuestionCount: 2}, domain.ErrDocumentNotFound, domain.ErrNotFound},
		{"no questions", app.CreateSessionParams{DocumentID: "doc-empty", QuestionCount: 2}, domain.ErrNoQuestionsAvailable, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.CreateSession(context.Background(), tc.params)
			if !errors.Is(err, tc.want) || !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v (%v), got %v", tc.want, tc.kind, err)
			}
		})
	}

	sessions, err := h.store.List(context.Background(), domain.SessionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("failed creations must not persist sessions, found %d", len(sessions))
	}
}

func TestCreateSessionDependencyFailures(t *testing.T) {
	docs := newStubDocuments(scenarioDocument())
	store := &failingStore{SessionRepository: memory.NewSessionStore(), createErr: errStorageDown}
	service := app.NewExamService(store, docs, app.WithRand(rand.New(rand.NewSource(1))))

	_, err := service.CreateSession(context.Background(), app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 1})
	if !errors.Is(err, domain.ErrDependency) || !errors.Is(err, errStorageDown) {
		t.Fatalf("expected dependency failure wrapping cause, got %v", err)
	}

	docs.fail(errStorageDown)
	_, err = service.CreateSession(context.Background(), app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 1})
	if !errors.Is(err, domain.ErrDependency) {
		t.Fatalf("expected dependency failure from question store, got %v", err)
	}
}

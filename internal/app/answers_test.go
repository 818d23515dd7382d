package app_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
)

func TestSetAnswerOverwritesOnlyItsEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioDocument())
	session := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 4})

	if err := h.service.SetAnswer(ctx, session.ID, "q1", 2); err != nil {
		t.Fatalf("set q1: %v", err)
	}
	if err := h.service.SetAnswer(ctx, session.ID, "q2", 1); err != nil {
		t.Fatalf("set q2: %v", err)
	}
	if err := h.service.SetAnswer(ctx, session.ID, "q1", 0); err != nil {
		t.Fatalf("overwrite q1: %v", err)
	}

	got := h.get(t, session.ID)
	if !reflect.DeepEqual(got.Answers["q1"], domain.SingleAnswer(0)) || !reflect.DeepEqual(got.Answers["q2"], domain.SingleAnswer(1)) {
		t.Fatalf("unexpected answers %v", got.Answers)
	}
}

func TestToggleAnswerBuildsSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioDocument())
	session := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 4})

	steps := []struct {
		position int
		want     []int
	}{
		{2, []int{2}},
		{0, []int{0, 2}},
		{2, []int{0}},
		{0, []int{}},
		{1, []int{1}},
	}
	for i, step := range steps {
		answer, err := h.service.ToggleAnswer(ctx, session.ID, "q4", step.position)
		if err != nil {
			t.Fatalf("step %d: toggle: %v", i, err)
		}
		if answer.Kind != domain.AnswerMulti || !reflect.DeepEqual(answer.Positions, step.want) {
			t.Fatalf("step %d: got %+v, want %v", i, answer, step.want)
		}
	}
	stored := h.get(t, session.ID).Answers["q4"]
	if !reflect.DeepEqual(stored.Positions, []int{1}) {
		t.Fatalf("stored %+v, want [1]", stored)
	}
}

func TestConcurrentAnswersToDifferentQuestions(t *testing.T) {
	ctx := context.Background()
	doc := numberedDocument("doc-30", 30)
	h := newHarness(t, doc)
	session := h.create(t, app.CreateSessionParams{DocumentID: doc.ID, QuestionCount: 30})

	var wg sync.WaitGroup
	for i, id := range session.QuestionIDs {
		wg.Add(1)
		go func(id string, pos int) {
			defer wg.Done()
			if err := h.service.SetAnswer(ctx, session.ID, id, pos); err != nil {
				t.Errorf("set %s: %v", id, err)
			}
		}(id, i%2)
	}
	wg.Wait()

	got := h.get(t, session.ID)
	if len(got.Answers) != 30 {
		t.Fatalf("expected 30 answers, got %d", len(got.Answers))
	}
}

func TestAnswersAfterCompletionAreRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioDocument())
	session := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 4})
	if err := h.service.SetAnswer(ctx, session.ID, "q1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := h.service.ToggleAnswer(ctx, session.ID, "q4", 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := h.service.Submit(ctx, session.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := h.get(t, session.ID).Answers

	err := h.service.SetAnswer(ctx, session.ID, "q1", 3)
	if !errors.Is(err, domain.ErrSessionAlreadyCompleted) || !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrSessionAlreadyCompleted, got %v", err)
	}
	if _, err := h.service.ToggleAnswer(ctx, session.ID, "q4", 2); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on toggle, got %v", err)
	}
	if err := h.service.SetAnswer(ctx, session.ID, "q2", 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on a fresh entry, got %v", err)
	}

	after := h.get(t, session.ID).Answers
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("answers changed after completion: %v -> %v", before, after)
	}
}

func TestAnswerValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioDocument())
	session := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 2})

	if err := h.service.SetAnswer(ctx, session.ID, "q4", 0); !errors.Is(err, domain.ErrQuestionNotInSession) {
		t.Fatalf("expected ErrQuestionNotInSession, got %v", err)
	}
	if err := h.service.SetAnswer(ctx, "missing", "q1", 0); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	full := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 4})
	if err := h.service.SetAnswer(ctx, full.ID, "q4", 0); !errors.Is(err, domain.ErrAnswerTypeMismatch) {
		t.Fatalf("single answer on multi question: got %v", err)
	}
	if _, err := h.service.ToggleAnswer(ctx, full.ID, "q1", 0); !errors.Is(err, domain.ErrAnswerTypeMismatch) {
		t.Fatalf("toggle on single question: got %v", err)
	}
}

func TestSetAnswerDoesNotValidatePosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioDocument())
	session := h.create(t, app.CreateSessionParams{DocumentID: "doc-exam", QuestionCount: 1})

	if err := h.service.SetAnswer(ctx, session.ID, "q1", 17); err != nil {
		t.Fatalf("out-of-range positions are accepted at write time: %v", err)
	}
	result, err := h.service.Submit(ctx, session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.CorrectCount != 0 {
		t.Fatalf("out-of-range answer must grade incorrect, got %+v", result)
	}
}

// Package storetest holds the behavioural suite every app.SessionRepository must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) app.SessionRepository

// Run executes the suite against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newRepo(t)) })
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("AnswerFieldUpdate", func(t *testing.T) { testAnswerFieldUpdate(t, newRepo(t)) })
	t.Run("ConcurrentAnswers", func(t *testing.T) { testConcurrentAnswers(t, newRepo(t)) })
	t.Run("CurrentQuestion", func(t *testing.T) { testCurrentQuestion(t, newRepo(t)) })
	t.Run("CompleteOnce", func(t *testing.T) { testCompleteOnce(t, newRepo(t)) })
	t.Run("ConcurrentComplete", func(t *testing.T) { testConcurrentComplete(t, newRepo(t)) })
	t.Run("TerminalIsImmutable", func(t *testing.T) { testTerminalIsImmutable(t, newRepo(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newRepo(t)) })
}

// base is millisecond-aligned UTC so every backend round-trips it exactly.
var base = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// NewSession builds an active session fixture with n questions started at base+offset.
func NewSession(id, documentID string, n int, offset time.Duration) domain.Session {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%d", i+1)
	}
	return domain.Session{
		ID:          id,
		DocumentID:  documentID,
		QuestionIDs: ids,
		Answers:     map[string]domain.Answer{},
		StartedAt:   base.Add(offset),
	}
}

func mustCreate(t *testing.T, repo app.SessionRepository, session domain.Session) {
	t.Helper()
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("create %s: %v", session.ID, err)
	}
}

func mustGet(t *testing.T, repo app.SessionRepository, id string) domain.Session {
	t.Helper()
	session, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return session
}

func testGetMissing(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.UpdateAnswer(ctx, "missing", "q1", domain.SingleAnswer(0)); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on answer, got %v", err)
	}
	if err := repo.UpdateCurrentQuestion(ctx, "missing", 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on cursor, got %v", err)
	}
	if _, _, err := repo.Complete(ctx, "missing", base, domain.Result{}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on complete, got %v", err)
	}
}

func testCreateAndGet(t *testing.T, repo app.SessionRepository) {
	session := NewSession("s1", "doc-1", 3, 0)
	timerStart := base
	session.TimerEnabled = true
	session.TimerMinutes = 15
	session.TimerStartedAt = &timerStart
	mustCreate(t, repo, session)

	got := mustGet(t, repo, "s1")
	if got.ID != "s1" || got.DocumentID != "doc-1" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if !reflect.DeepEqual(got.QuestionIDs, session.QuestionIDs) {
		t.Fatalf("question ids changed: %v", got.QuestionIDs)
	}
	if !got.TimerEnabled || got.TimerMinutes != 15 || got.TimerStartedAt == nil || !got.TimerStartedAt.Equal(timerStart) {
		t.Fatalf("timer not persisted: %+v", got)
	}
	if !got.StartedAt.Equal(session.StartedAt) {
		t.Fatalf("startedAt %v, want %v", got.StartedAt, session.StartedAt)
	}
	if got.IsTerminal() || got.Result != nil {
		t.Fatalf("new session must be active, got %+v", got)
	}
	if len(got.Answers) != 0 {
		t.Fatalf("expected no answers, got %v", got.Answers)
	}
}

func testAnswerFieldUpdate(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	mustCreate(t, repo, NewSession("s1", "doc-1", 3, 0))

	if err := repo.UpdateAnswer(ctx, "s1", "q1", domain.SingleAnswer(2)); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if err := repo.UpdateAnswer(ctx, "s1", "q2", domain.MultiAnswer(0, 3)); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	if err := repo.UpdateAnswer(ctx, "s1", "q1", domain.SingleAnswer(0)); err != nil {
		t.Fatalf("overwrite q1: %v", err)
	}

	got := mustGet(t, repo, "s1")
	if a := got.Answers["q1"]; a.Kind != domain.AnswerSingle || a.Position != 0 {
		t.Fatalf("q1 = %+v, want single 0", a)
	}
	if a := got.Answers["q2"]; a.Kind != domain.AnswerMulti || !reflect.DeepEqual(a.Positions, []int{0, 3}) {
		t.Fatalf("q2 = %+v, want multi [0 3]", a)
	}
	if _, ok := got.Answers["q3"]; ok {
		t.Fatalf("q3 should be unanswered")
	}
}

func testConcurrentAnswers(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	const n = 20
	mustCreate(t, repo, NewSession("s1", "doc-1", n, 0))

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.UpdateAnswer(ctx, "s1", fmt.Sprintf("q%d", i+1), domain.SingleAnswer(i%4))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent answer: %v", err)
		}
	}

	got := mustGet(t, repo, "s1")
	if len(got.Answers) != n {
		t.Fatalf("expected %d answers, got %d", n, len(got.Answers))
	}
	for i := 0; i < n; i++ {
		if a := got.Answers[fmt.Sprintf("q%d", i+1)]; a.Position != i%4 {
			t.Fatalf("q%d = %+v, want %d", i+1, a, i%4)
		}
	}
}

func testCurrentQuestion(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	mustCreate(t, repo, NewSession("s1", "doc-1", 5, 0))
	if err := repo.UpdateCurrentQuestion(ctx, "s1", 3); err != nil {
		t.Fatalf("update cursor: %v", err)
	}
	if err := repo.UpdateAnswer(ctx, "s1", "q1", domain.SingleAnswer(1)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	got := mustGet(t, repo, "s1")
	if got.CurrentQuestionIndex != 3 {
		t.Fatalf("cursor = %d, want 3", got.CurrentQuestionIndex)
	}
	if _, ok := got.Answers["q1"]; !ok {
		t.Fatalf("cursor update must not clobber answers")
	}
}

func testCompleteOnce(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	mustCreate(t, repo, NewSession("s1", "doc-1", 4, 0))

	first := domain.Result{Score: 50, CorrectCount: 2, TotalQuestions: 4}
	completedAt := base.Add(time.Minute)
	stored, won, err := repo.Complete(ctx, "s1", completedAt, first)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !won {
		t.Fatalf("first complete must win")
	}
	if stored.CompletedAt == nil || !stored.CompletedAt.Equal(completedAt) || stored.Result == nil || *stored.Result != first {
		t.Fatalf("unexpected stored session %+v", stored)
	}

	stored, won, err = repo.Complete(ctx, "s1", completedAt.Add(time.Minute), domain.Result{Score: 100, CorrectCount: 4, TotalQuestions: 4})
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if won {
		t.Fatalf("second complete must not win")
	}
	if !stored.CompletedAt.Equal(completedAt) || *stored.Result != first {
		t.Fatalf("second complete changed state: %+v %+v", stored.CompletedAt, stored.Result)
	}
}

func testConcurrentComplete(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	mustCreate(t, repo, NewSession("s1", "doc-1", 10, 0))

	const racers = 8
	var wg sync.WaitGroup
	type outcome struct {
		won    bool
		result domain.Result
		err    error
	}
	outcomes := make(chan outcome, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := domain.Result{Score: i * 10, CorrectCount: i, TotalQuestions: 10}
			stored, won, err := repo.Complete(ctx, "s1", base.Add(time.Duration(i)*time.Second), res)
			var r domain.Result
			if stored.Result != nil {
				r = *stored.Result
			}
			outcomes <- outcome{won: won, result: r, err: err}
		}(i)
	}
	wg.Wait()
	close(outcomes)

	winners := 0
	var results []domain.Result
	for o := range outcomes {
		if o.err != nil {
			t.Fatalf("complete: %v", o.err)
		}
		if o.won {
			winners++
		}
		results = append(results, o.result)
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	for _, r := range results[1:] {
		if r != results[0] {
			t.Fatalf("racers observed different results: %+v vs %+v", results[0], r)
		}
	}
	final := mustGet(t, repo, "s1")
	if final.Result == nil || *final.Result != results[0] {
		t.Fatalf("persisted result %+v differs from returned %+v", final.Result, results[0])
	}
}

func testTerminalIsImmutable(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	mustCreate(t, repo, NewSession("s1", "doc-1", 3, 0))
	if err := repo.UpdateAnswer(ctx, "s1", "q1", domain.SingleAnswer(1)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, _, err := repo.Complete(ctx, "s1", base, domain.Result{Score: 33, CorrectCount: 1, TotalQuestions: 3}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := repo.UpdateAnswer(ctx, "s1", "q1", domain.SingleAnswer(2)); !errors.Is(err, domain.ErrSessionAlreadyCompleted) {
		t.Fatalf("expected ErrSessionAlreadyCompleted, got %v", err)
	}
	if err := repo.UpdateAnswer(ctx, "s1", "q2", domain.MultiAnswer(1)); !errors.Is(err, domain.ErrSessionAlreadyCompleted) {
		t.Fatalf("expected ErrSessionAlreadyCompleted for new entry, got %v", err)
	}
	if err := repo.UpdateCurrentQuestion(ctx, "s1", 2); !errors.Is(err, domain.ErrSessionAlreadyCompleted) {
		t.Fatalf("expected ErrSessionAlreadyCompleted for cursor, got %v", err)
	}

	got := mustGet(t, repo, "s1")
	if len(got.Answers) != 1 || got.Answers["q1"].Position != 1 {
		t.Fatalf("answers changed after completion: %v", got.Answers)
	}
	if got.CurrentQuestionIndex != 0 {
		t.Fatalf("cursor changed after completion: %d", got.CurrentQuestionIndex)
	}
}

func testList(t *testing.T, repo app.SessionRepository) {
	ctx := context.Background()
	mustCreate(t, repo, NewSession("old", "doc-1", 2, 0))
	mustCreate(t, repo, NewSession("mid", "doc-2", 2, time.Minute))
	mustCreate(t, repo, NewSession("new", "doc-1", 2, 2*time.Minute))
	if _, _, err := repo.Complete(ctx, "mid", base.Add(5*time.Minute), domain.Result{Score: 100, CorrectCount: 2, TotalQuestions: 2}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cases := []struct {
		name   string
		filter domain.SessionFilter
		want   []string
	}{
		{"all", domain.SessionFilter{}, []string{"new", "mid", "old"}},
		{"document", domain.SessionFilter{DocumentID: "doc-1"}, []string{"new", "old"}},
		{"active", domain.SessionFilter{Status: domain.StatusActive}, []string{"new", "old"}},
		{"completed", domain.SessionFilter{Status: domain.StatusCompleted}, []string{"mid"}},
		{"limit", domain.SessionFilter{Limit: 2}, []string{"new", "mid"}},
	}
	for _, tc := range cases {
		sessions, err := repo.List(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: list: %v", tc.name, err)
		}
		got := make([]string, 0, len(sessions))
		for _, s := range sessions {
			got = append(got, s.ID)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/memory"
	"superexam-session-service/internal/worker"

	"github.com/rs/zerolog"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSweepSubmitsOnlyExpiredTimedSessions(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	docs := memory.NewDocumentRepository(memory.NewStaticDocumentLoader(map[string]domain.Document{
		"doc-1": {
			ID: "doc-1",
			Questions: []domain.Question{
				{ID: "q1", Choices: []domain.Choice{{Index: "A"}, {Index: "B"}}, CorrectAnswers: []domain.ChoiceIndex{"A"}},
				{ID: "q2", Choices: []domain.Choice{{Index: "A"}, {Index: "B"}}, CorrectAnswers: []domain.ChoiceIndex{"B"}},
			},
		},
	}), time.Minute)
	store := memory.NewSessionStore()
	svc := app.NewExamService(store, docs, app.WithClock(clk.Now))

	short, err := svc.CreateSession(ctx, app.CreateSessionParams{DocumentID: "doc-1", QuestionCount: 2, TimerEnabled: true, TimerMinutes: 1})
	if err != nil {
		t.Fatalf("create short: %v", err)
	}
	long, err := svc.CreateSession(ctx, app.CreateSessionParams{DocumentID: "doc-1", QuestionCount: 2, TimerEnabled: true, TimerMinutes: 30})
	if err != nil {
		t.Fatalf("create long: %v", err)
	}
	untimed, err := svc.CreateSession(ctx, app.CreateSessionParams{DocumentID: "doc-1", QuestionCount: 2})
	if err != nil {
		t.Fatalf("create untimed: %v", err)
	}
	if err := svc.SetAnswer(ctx, short.ID, "q1", 0); err != nil {
		t.Fatalf("answer: %v", err)
	}

	w := worker.NewExpiryWorker(svc, time.Second, zerolog.Nop())
	if n := w.Sweep(ctx); n != 0 {
		t.Fatalf("nothing expired yet, swept %d", n)
	}

	clk.Advance(2 * time.Minute)
	if n := w.Sweep(ctx); n != 1 {
		t.Fatalf("expected one expired session, swept %d", n)
	}
	got, err := store.Get(ctx, short.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsTerminal() || got.Result == nil || got.Result.Score != 50 {
		t.Fatalf("short session not graded: %+v", got)
	}
	for _, id := range []string{long.ID, untimed.ID} {
		s, _ := store.Get(ctx, id)
		if s.IsTerminal() {
			t.Fatalf("session %s must stay active", id)
		}
	}

	if n := w.Sweep(ctx); n != 0 {
		t.Fatalf("completed sessions must not be swept again, swept %d", n)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	svc := app.NewExamService(memory.NewSessionStore(), memory.NewDocumentRepository(memory.NewStaticDocumentLoader(nil), 0))
	w := worker.NewExpiryWorker(svc, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}

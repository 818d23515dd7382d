package redis

import (
	"context"
	"testing"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/storetest"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.SessionRepository {
		mr := miniredis.RunT(t)
		return NewSessionStore(newClient(mr), 0)
	})
}

func TestSessionStoreWritesAnswersAsHashFields(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Hour)
	ctx := context.Background()

	if err := store.Create(ctx, storetest.NewSession("s1", "doc-1", 2, 0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateAnswer(ctx, "s1", "q2", domain.MultiAnswer(2, 0)); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if got := mr.HGet("exam:session:s1", "answer:q2"); got == "" {
		t.Fatalf("expected answer:q2 hash field")
	}
	if ttl := mr.TTL("exam:session:s1"); ttl <= 0 {
		t.Fatalf("expected ttl on session hash, got %v", ttl)
	}
	members, err := mr.ZMembers("exam:sessions")
	if err != nil || len(members) != 1 || members[0] != "s1" {
		t.Fatalf("expected index entry for s1, got %v (%v)", members, err)
	}
}

func TestSessionStoreListDropsExpiredEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Minute)
	ctx := context.Background()

	if err := store.Create(ctx, storetest.NewSession("s1", "doc-1", 2, 0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	sessions, err := store.List(ctx, domain.SessionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected expired session to be skipped, got %d", len(sessions))
	}
	if members, _ := mr.ZMembers("exam:sessions"); len(members) != 0 {
		t.Fatalf("expected stale index entry removed, got %v", members)
	}
}

func TestSessionStoreCreateWritesHashAndIndexesTogether(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Hour)
	ctx := context.Background()

	session := storetest.NewSession("s1", "doc-1", 3, 0)
	session.CurrentQuestionIndex = 2
	session.Answers = map[string]domain.Answer{"q1": domain.SingleAnswer(1)}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := mr.HGet("exam:session:s1", "cursor"); got != "2" {
		t.Fatalf("cursor field = %q, want 2", got)
	}
	if got := mr.HGet("exam:session:s1", "answer:q1"); got == "" {
		t.Fatalf("expected answer:q1 hash field")
	}
	if ttl := mr.TTL("exam:session:s1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	for _, key := range []string{"exam:sessions", "exam:sessions:active"} {
		if members, err := mr.ZMembers(key); err != nil || len(members) != 1 || members[0] != "s1" {
			t.Fatalf("expected s1 in %s, got %v (%v)", key, members, err)
		}
	}

	duplicate := storetest.NewSession("s1", "doc-2", 1, 0)
	if err := store.Create(ctx, duplicate); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DocumentID != "doc-1" || got.CurrentQuestionIndex != 2 {
		t.Fatalf("duplicate create modified the session: %+v", got)
	}
}

func TestSessionStoreActiveIndexTracksCompletion(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), 0)
	ctx := context.Background()

	for i, id := range []string{"s1", "s2"} {
		if err := store.Create(ctx, storetest.NewSession(id, "doc-1", 2, time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, won, err := store.Complete(ctx, "s1", time.Now(), domain.Result{Score: 50, CorrectCount: 1, TotalQuestions: 2}); err != nil || !won {
		t.Fatalf("complete: won=%v err=%v", won, err)
	}

	if members, err := mr.ZMembers("exam:sessions:active"); err != nil || len(members) != 1 || members[0] != "s2" {
		t.Fatalf("expected only s2 active, got %v (%v)", members, err)
	}
	active, err := store.List(ctx, domain.SessionFilter{Status: domain.StatusActive})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "s2" {
		t.Fatalf("unexpected active sessions %+v", active)
	}
	all, err := store.List(ctx, domain.SessionFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both sessions in history, got %d", len(all))
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/memory"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

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

type fixture struct {
	router  *gin.Engine
	service *app.ExamService
	store   *memory.SessionStore
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	docs := memory.NewDocumentRepository(memory.NewStaticDocumentLoader(sampleDocuments()), time.Minute)
	service := app.NewExamService(store, docs, app.WithClock(clock.Now))
	router := NewRouter(service, RouterConfig{GinMode: gin.TestMode, TickInterval: 10 * time.Millisecond}, zerolog.Nop())
	return &fixture{router: router, service: service, store: store, clock: clock}
}

type testEnvelope struct {
	Data     json.RawMessage `json:"data"`
	Error    *ErrorBody      `json:"error"`
	Metadata Metadata        `json:"metadata"`
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, testEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode envelope %q: %v", method, path, rec.Body.String(), err)
	}
	if env.Metadata.RequestID == "" {
		t.Fatalf("%s %s: missing request id", method, path)
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env testEnvelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func expectStatus(t *testing.T, got, want int, env testEnvelope) {
	t.Helper()
	if got != want {
		t.Fatalf("status %d, want %d (error %+v)", got, want, env.Error)
	}
}

// sampleDocuments: q1 single (B), q2 multi (A,C), q3 single (A), q4 single (B).
func sampleDocuments() map[string]domain.Document {
	abc := []domain.Choice{{Index: "A", Text: "alpha"}, {Index: "B", Text: "bravo"}, {Index: "C", Text: "charlie"}}
	return map[string]domain.Document{
		"doc-1": {
			ID:     "doc-1",
			Title:  "Radio alphabet",
			Status: domain.DocumentReady,
			Questions: []domain.Question{
				{ID: "q1", Text: "Second letter?", Type: domain.SingleSelect, Choices: abc, CorrectAnswers: []domain.ChoiceIndex{"B"}, Explanation: "B is bravo"},
				{ID: "q2", Text: "Odd letters?", Type: domain.MultiSelect, Choices: abc, CorrectAnswers: []domain.ChoiceIndex{"A", "C"}},
				{ID: "q3", Text: "First letter?", Choices: abc, CorrectAnswers: []domain.ChoiceIndex{"A"}},
				{ID: "q4", Text: "Bravo?", Choices: abc, CorrectAnswers: []domain.ChoiceIndex{"B"}},
			},
		},
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

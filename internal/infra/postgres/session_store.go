package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"superexam-session-service/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:exam_sessions,alias:s"`

	ID                   string                   `bun:"id,pk"`
	DocumentID           string                   `bun:"document_id,notnull"`
	QuestionIDs          []string                 `bun:"question_ids,type:jsonb,notnull"`
	Answers              map[string]domain.Answer `bun:"answers,type:jsonb,notnull"`
	TimerEnabled         bool                     `bun:"timer_enabled,notnull"`
	TimerMinutes         *int                     `bun:"timer_minutes"`
	TimerStartedAt       *time.Time               `bun:"timer_started_at"`
	CurrentQuestionIndex int                      `bun:"current_question_index,notnull"`
	StartedAt            time.Time                `bun:"started_at,notnull"`
	CompletedAt          *time.Time               `bun:"completed_at"`
	Score                *int                     `bun:"score"`
	CorrectCount         *int                     `bun:"correct_count"`
	TotalQuestions       *int                     `bun:"total_questions"`
}

// SessionStore keeps sessions in the exam_sessions table. Answers live in one JSONB column and
// are written with jsonb_set so each write touches only its own key; every write to an active
// session carries "completed_at IS NULL" in its WHERE clause.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return row.toSession(), nil
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	row := toRow(session)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return err
}

func (s *SessionStore) UpdateAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("answers = jsonb_set(answers, ?, ?::jsonb, true)", pgdialect.Array([]string{questionID}), string(raw)).
		Where("id = ?", sessionID).
		Where("completed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkActiveWrite(ctx, res, sessionID)
}

func (s *SessionStore) UpdateCurrentQuestion(ctx context.Context, sessionID string, index int) error {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("current_question_index = ?", index).
		Where("id = ?", sessionID).
		Where("completed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkActiveWrite(ctx, res, sessionID)
}

func (s *SessionStore) Complete(ctx context.Context, sessionID string, completedAt time.Time, result domain.Result) (domain.Session, bool, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("completed_at = ?", completedAt.UTC()).
		Set("score = ?", result.Score).
		Set("correct_count = ?", result.CorrectCount).
		Set("total_questions = ?", result.TotalQuestions).
		Where("id = ?", sessionID).
		Where("completed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return domain.Session{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, false, err
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, false, err
	}
	return session, n == 1, nil
}

func (s *SessionStore) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	var rows []sessionRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("started_at DESC, id ASC")
	if filter.DocumentID != "" {
		q = q.Where("document_id = ?", filter.DocumentID)
	}
	switch filter.Status {
	case domain.StatusActive:
		q = q.Where("completed_at IS NULL")
	case domain.StatusCompleted:
		q = q.Where("completed_at IS NOT NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toSession())
	}
	return sessions, nil
}

// checkActiveWrite tells a missing session apart from a completed one when a guarded update
// matched nothing.
func (s *SessionStore) checkActiveWrite(ctx context.Context, res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		return domain.ErrSessionAlreadyCompleted
	}
	return fmt.Errorf("update session %s matched no rows", sessionID)
}

func toRow(session domain.Session) sessionRow {
	row := sessionRow{
		ID:                   session.ID,
		DocumentID:           session.DocumentID,
		QuestionIDs:          session.QuestionIDs,
		Answers:              session.Answers,
		TimerEnabled:         session.TimerEnabled,
		TimerStartedAt:       session.TimerStartedAt,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		StartedAt:            session.StartedAt.UTC(),
		CompletedAt:          session.CompletedAt,
	}
	if row.Answers == nil {
		row.Answers = map[string]domain.Answer{}
	}
	if row.QuestionIDs == nil {
		row.QuestionIDs = []string{}
	}
	if session.TimerEnabled {
		minutes := session.TimerMinutes
		row.TimerMinutes = &minutes
	}
	if session.Result != nil {
		score, correct, total := session.Result.Score, session.Result.CorrectCount, session.Result.TotalQuestions
		row.Score, row.CorrectCount, row.TotalQuestions = &score, &correct, &total
	}
	return row
}

func (r sessionRow) toSession() domain.Session {
	session := domain.Session{
		ID:                   r.ID,
		DocumentID:           r.DocumentID,
		QuestionIDs:          r.QuestionIDs,
		Answers:              r.Answers,
		TimerEnabled:         r.TimerEnabled,
		TimerStartedAt:       utc(r.TimerStartedAt),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		StartedAt:            r.StartedAt.UTC(),
		CompletedAt:          utc(r.CompletedAt),
	}
	if session.Answers == nil {
		session.Answers = map[string]domain.Answer{}
	}
	if r.TimerMinutes != nil {
		session.TimerMinutes = *r.TimerMinutes
	}
	if r.CompletedAt != nil && r.Score != nil {
		session.Result = &domain.Result{Score: *r.Score}
		if r.CorrectCount != nil {
			session.Result.CorrectCount = *r.CorrectCount
		}
		if r.TotalQuestions != nil {
			session.Result.TotalQuestions = *r.TotalQuestions
		}
	}
	return session
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

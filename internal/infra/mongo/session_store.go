package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"superexam-session-service/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionStore persists one document per session in the "exam_sessions" collection.
// Answers are written with dotted $set paths so concurrent answers to different questions
// never overwrite each other; every write to an active session filters on completedAt: null.
type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{col: db.Collection("exam_sessions")}
}

// EnsureIndexes creates the listing index. Safe to call on every start.
func (s *SessionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "startedAt", Value: -1}}},
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "startedAt", Value: -1}}},
	})
	return err
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	var session domain.Session
	err := s.col.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	normalize(&session)
	return session, nil
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	if session.Answers == nil {
		session.Answers = map[string]domain.Answer{}
	}
	_, err := s.col.InsertOne(ctx, session)
	return err
}

func (s *SessionStore) UpdateAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer) error {
	if strings.ContainsAny(questionID, ".$") {
		return fmt.Errorf("question id %q cannot be used as a field path", questionID)
	}
	return s.updateActive(ctx, sessionID, bson.M{"answers." + questionID: answer})
}

func (s *SessionStore) UpdateCurrentQuestion(ctx context.Context, sessionID string, index int) error {
	return s.updateActive(ctx, sessionID, bson.M{"currentQuestionIndex": index})
}

func (s *SessionStore) Complete(ctx context.Context, sessionID string, completedAt time.Time, result domain.Result) (domain.Session, bool, error) {
	var session domain.Session
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": sessionID, "completedAt": nil},
		bson.M{"$set": bson.M{"completedAt": completedAt.UTC(), "result": result}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err == nil {
		normalize(&session)
		return session, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Session{}, false, err
	}
	// Either missing or already completed by another call.
	session, err = s.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, false, err
	}
	return session, false, nil
}

func (s *SessionStore) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	query := bson.M{}
	if filter.DocumentID != "" {
		query["documentId"] = filter.DocumentID
	}
	switch filter.Status {
	case domain.StatusActive:
		query["completedAt"] = nil
	case domain.StatusCompleted:
		query["completedAt"] = bson.M{"$ne": nil}
	}
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []domain.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	for i := range sessions {
		normalize(&sessions[i])
	}
	return sessions, nil
}

func (s *SessionStore) updateActive(ctx context.Context, sessionID string, set bson.M) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": sessionID, "completedAt": nil}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}
	return domain.ErrSessionAlreadyCompleted
}

// normalize pins timestamps to UTC and guarantees a non-nil answers map.
func normalize(session *domain.Session) {
	if session.Answers == nil {
		session.Answers = map[string]domain.Answer{}
	}
	session.StartedAt = session.StartedAt.UTC()
	if session.TimerStartedAt != nil {
		t := session.TimerStartedAt.UTC()
		session.TimerStartedAt = &t
	}
	if session.CompletedAt != nil {
		t := session.CompletedAt.UTC()
		session.CompletedAt = &t
	}
}

package mongo

import (
	"context"
	"errors"
	"time"

	"superexam-session-service/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentLoader reads documents from the "documents" collection and their questions from
// "questions", ordered by creation.
type DocumentLoader struct {
	documents *mongo.Collection
	questions *mongo.Collection
}

type documentRecord struct {
	ID        string                `bson:"_id"`
	Title     string                `bson:"title"`
	Status    domain.DocumentStatus `bson:"status"`
	CreatedAt time.Time             `bson:"createdAt"`
}

// questionRecord keys questions by document so ids only need to be unique per document.
type questionRecord struct {
	Key             string `bson:"_id"`
	domain.Question `bson:",inline"`
	DocumentID      string    `bson:"documentId"`
	CreatedAt       time.Time `bson:"createdAt"`
}

func NewDocumentLoader(db *mongo.Database) *DocumentLoader {
	return &DocumentLoader{
		documents: db.Collection("documents"),
		questions: db.Collection("questions"),
	}
}

func (l *DocumentLoader) LoadDocument(ctx context.Context, documentID string) (domain.Document, error) {
	var rec documentRecord
	err := l.documents.FindOne(ctx, bson.M{"_id": documentID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}

	cursor, err := l.questions.Find(ctx,
		bson.M{"documentId": documentID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}}),
	)
	if err != nil {
		return domain.Document{}, err
	}
	defer cursor.Close(ctx)

	var records []questionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return domain.Document{}, err
	}
	questions := make([]domain.Question, 0, len(records))
	for _, r := range records {
		questions = append(questions, r.Question)
	}
	return domain.Document{
		ID:        rec.ID,
		Title:     rec.Title,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt.UTC(),
		Questions: questions,
	}, nil
}

// SaveDocument writes a document and replaces its questions. Used to seed the store; the
// generation pipeline owns this collection in production.
func (l *DocumentLoader) SaveDocument(ctx context.Context, doc domain.Document) error {
	_, err := l.documents.ReplaceOne(ctx, bson.M{"_id": doc.ID}, documentRecord{
		ID:        doc.ID,
		Title:     doc.Title,
		Status:    doc.Status,
		CreatedAt: doc.CreatedAt,
	}, options.Replace().SetUpsert(true))
	if err != nil {
		return err
	}
	if _, err := l.questions.DeleteMany(ctx, bson.M{"documentId": doc.ID}); err != nil {
		return err
	}
	if len(doc.Questions) == 0 {
		return nil
	}
	records := make([]interface{}, 0, len(doc.Questions))
	for i, q := range doc.Questions {
		records = append(records, questionRecord{
			Key:        doc.ID + "/" + q.ID,
			Question:   q,
			DocumentID: doc.ID,
			CreatedAt:  doc.CreatedAt.Add(time.Duration(i) * time.Millisecond),
		})
	}
	_, err = l.questions.InsertMany(ctx, records)
	return err
}

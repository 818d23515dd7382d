package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"superexam-session-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DocumentLoader loads documents and their JSONB questions from Postgres.
type DocumentLoader struct {
	pool *pgxpool.Pool
}

func NewDocumentLoader(pool *pgxpool.Pool) *DocumentLoader {
	return &DocumentLoader{pool: pool}
}

func (l *DocumentLoader) LoadDocument(ctx context.Context, documentID string) (domain.Document, error) {
	var doc domain.Document
	var status string
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, status, created_at FROM documents WHERE id=$1`, documentID,
	).Scan(&doc.ID, &doc.Title, &status, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)

	rows, err := l.pool.Query(ctx,
		`SELECT data FROM questions WHERE document_id=$1 ORDER BY position, created_at`, documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return domain.Document{}, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal question: %w", err)
		}
		doc.Questions = append(doc.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Document{}, fmt.Errorf("load questions: %w", err)
	}
	return doc, nil
}

// SaveDocument upserts a document and replaces its questions in one transaction.
func (l *DocumentLoader) SaveDocument(ctx context.Context, doc domain.Document) error {
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		status := doc.Status
		if status == "" {
			status = domain.DocumentReady
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (id, title, status, created_at) VALUES ($1, $2, $3, COALESCE($4, NOW()))
			 ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, status=EXCLUDED.status`,
			doc.ID, doc.Title, string(status), nullTime(doc),
		); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE document_id=$1`, doc.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		batch := &pgx.Batch{}
		for i, q := range doc.Questions {
			data, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("marshal question %s: %w", q.ID, err)
			}
			batch.Queue(`INSERT INTO questions (document_id, id, position, data) VALUES ($1, $2, $3, $4)`,
				doc.ID, q.ID, i, data)
		}
		results := tx.SendBatch(ctx, batch)
		for range doc.Questions {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert question: %w", err)
			}
		}
		return results.Close()
	})
}

func nullTime(doc domain.Document) interface{} {
	if doc.CreatedAt.IsZero() {
		return nil
	}
	return doc.CreatedAt
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"superexam-session-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DocumentLoader fetches a document and its questions from a backing store (e.g., document DB).
type DocumentLoader interface {
	LoadDocument(ctx context.Context, documentID string) (domain.Document, error)
}

// DocumentRepository caches whole documents in Redis and falls back to a loader on cache miss.
// Documents are stored as: SET exam:document:{documentID} <json> EX ttl
type DocumentRepository struct {
	client *redis.Client
	loader DocumentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewDocumentRepository(client *redis.Client, loader DocumentLoader, ttl time.Duration) *DocumentRepository {
	return &DocumentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DocumentRepository) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	if doc, ok := r.cached(ctx, documentID); ok {
		return doc, nil
	}

	result, err, _ := r.sf.Do(documentID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if doc, ok := r.cached(ctx, documentID); ok {
			return doc, nil
		}

		doc, err := r.loader.LoadDocument(ctx, documentID)
		if err != nil {
			return domain.Document{}, err
		}

		if raw, err := json.Marshal(doc); err == nil {
			// best-effort fill; a failed write only costs another load
			_ = r.client.Set(ctx, r.key(documentID), raw, r.ttlWithJitter()).Err()
		}
		return doc, nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	return result.(domain.Document), nil
}

// Invalidate drops the cached copy of a document.
func (r *DocumentRepository) Invalidate(ctx context.Context, documentID string) error {
	return r.client.Del(ctx, r.key(documentID)).Err()
}

func (r *DocumentRepository) cached(ctx context.Context, documentID string) (domain.Document, bool) {
	raw, err := r.client.Get(ctx, r.key(documentID)).Bytes()
	if err != nil {
		return domain.Document{}, false
	}
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Document{}, false
	}
	return doc, true
}

func (r *DocumentRepository) key(documentID string) string {
	return "exam:document:" + documentID
}

func (r *DocumentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

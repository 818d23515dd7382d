package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"superexam-session-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// DocumentLoader fetches a document and its questions from a backing store (e.g., document DB).
type DocumentLoader interface {
	LoadDocument(ctx context.Context, documentID string) (domain.Document, error)
}

// DocumentRepository caches documents with TTL to avoid repeated store hits. Questions are
// immutable once generated, so a stale entry only delays seeing newly added questions.
type DocumentRepository struct {
	loader DocumentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedDocument
}

type cachedDocument struct {
	doc       domain.Document
	expiresAt time.Time
}

func NewDocumentRepository(loader DocumentLoader, ttl time.Duration) *DocumentRepository {
	return &DocumentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDocument),
	}
}

func (r *DocumentRepository) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	if doc, ok := r.cached(documentID); ok {
		return doc, nil
	}

	result, err, _ := r.sf.Do(documentID, func() (interface{}, error) {
		if doc, ok := r.cached(documentID); ok {
			return doc, nil
		}

		doc, err := r.loader.LoadDocument(ctx, documentID)
		if err != nil {
			return domain.Document{}, err
		}
		if r.ttl > 0 {
			r.mu.Lock()
			r.cache[documentID] = cachedDocument{
				doc:       doc,
				expiresAt: r.clock().Add(r.ttlWithJitter()),
			}
			r.mu.Unlock()
		}
		return doc, nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	return result.(domain.Document), nil
}

// Invalidate drops a cached document, e.g. after the pipeline regenerates its questions.
func (r *DocumentRepository) Invalidate(documentID string) {
	r.mu.Lock()
	delete(r.cache, documentID)
	r.mu.Unlock()
}

func (r *DocumentRepository) cached(documentID string) (domain.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[documentID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Document{}, false
	}
	return entry.doc, true
}

func (r *DocumentRepository) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticDocumentLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticDocumentLoader struct {
	documents map[string]domain.Document
}

func NewStaticDocumentLoader(documents map[string]domain.Document) *StaticDocumentLoader {
	return &StaticDocumentLoader{documents: documents}
}

func (l *StaticDocumentLoader) LoadDocument(_ context.Context, documentID string) (domain.Document, error) {
	if doc, ok := l.documents[documentID]; ok {
		return doc, nil
	}
	return domain.Document{}, domain.ErrDocumentNotFound
}

package cli

import (
	"context"
	"fmt"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/config"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/memory"
	mongostore "superexam-session-service/internal/infra/mongo"
	pgstore "superexam-session-service/internal/infra/postgres"
	redisstore "superexam-session-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// backends is the storage stack selected by storage.driver.
type backends struct {
	sessions       app.SessionRepository
	documents      app.DocumentRepository
	documentWriter documentWriter
	closers        []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the configured stores. Documents come from MongoDB when it is the
// session store, otherwise from Postgres when a URL is configured, otherwise from the fixture
// file; they are cached in Redis when an address is configured, in process otherwise.
func openBackends(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var mongoDB *mongo.Database
	if cfg.Storage.Driver == config.DriverMongo {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		mongoDB = client.Database(cfg.Mongo.Database)
	}

	var loader memory.DocumentLoader
	switch {
	case mongoDB != nil:
		l := mongostore.NewDocumentLoader(mongoDB)
		loader, b.documentWriter = l, l
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		l := pgstore.NewDocumentLoader(pool)
		loader, b.documentWriter = l, l
	default:
		docs := map[string]domain.Document{}
		if cfg.Documents.Fixtures != "" {
			loaded, err := memory.LoadFixtures(cfg.Documents.Fixtures)
			if err != nil {
				return nil, fmt.Errorf("load fixtures: %w", err)
			}
			docs = loaded
		}
		log.Info().Int("documents", len(docs)).Str("path", cfg.Documents.Fixtures).Msg("serving fixture documents")
		loader = memory.NewStaticDocumentLoader(docs)
	}

	documentTTL := config.Duration(cfg.Documents.TTL, 10*time.Minute)
	if redisClient != nil {
		b.documents = redisstore.NewDocumentRepository(redisClient, loader, documentTTL)
	} else {
		b.documents = memory.NewDocumentRepository(loader, documentTTL)
	}

	sessionTTL := config.Duration(cfg.Storage.SessionTTL, 0)
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		b.sessions = memory.NewSessionStore()
	case config.DriverRedis:
		b.sessions = redisstore.NewSessionStore(redisClient, sessionTTL)
	case config.DriverMongo:
		store := mongostore.NewSessionStore(mongoDB)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		b.sessions = store
	case config.DriverPostgres:
		db, err := openBun(cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		b.sessions = pgstore.NewSessionStore(db)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	log.Info().
		Str("driver", cfg.Storage.Driver).
		Bool("redis_cache", redisClient != nil).
		Msg("storage ready")
	ok = true
	return b, nil
}

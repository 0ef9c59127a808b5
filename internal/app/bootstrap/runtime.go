package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/calendar"
	appconfig "github.com/wolfman30/leadqual-platform/internal/config"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/meetings"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

const businessCacheTTL = 5 * time.Minute

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ConnectPostgres opens the pgx pool and a database/sql handle sharing it.
// An empty URL returns nils; the caller falls back to in-memory storage.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, *sql.DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// Repositories groups the persistence layer.
type Repositories struct {
	Leads         leads.Repository
	Businesses    business.Repository
	Conversations conversation.Store
	Meetings      meetings.Repository
	Credentials   calendar.CredentialStore
}

// BuildRepositories picks Postgres-backed repositories when a pool is
// available and in-memory ones otherwise. Business reads are cached in Redis
// when a client is provided.
func BuildRepositories(pool *pgxpool.Pool, sqlDB *sql.DB, redisClient *redis.Client, logger *logging.Logger) Repositories {
	if logger == nil {
		logger = logging.Default()
	}

	var repos Repositories
	if pool != nil && sqlDB != nil {
		repos = Repositories{
			Leads:         leads.NewPostgresRepository(pool),
			Businesses:    business.NewPostgresRepository(pool),
			Conversations: conversation.NewSQLStore(sqlDB, nil),
			Meetings:      meetings.NewPostgresRepository(pool),
			Credentials:   calendar.NewPostgresCredentialStore(pool),
		}
	} else {
		logger.Warn("no database configured; using in-memory repositories")
		repos = Repositories{
			Leads:         leads.NewInMemoryRepository(),
			Businesses:    business.NewInMemoryRepository(),
			Conversations: conversation.NewInMemoryStore(),
			Meetings:      meetings.NewInMemoryRepository(),
			Credentials:   calendar.NewInMemoryCredentialStore(),
		}
	}

	if redisClient != nil {
		repos.Businesses = business.NewCachedRepository(repos.Businesses, redisClient, businessCacheTTL, logger)
	}
	return repos
}

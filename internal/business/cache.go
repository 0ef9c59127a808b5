package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// CachedRepository fronts a Repository with Redis for the reads the inbound
// pipeline makes on every message. Writes go through and invalidate.
type CachedRepository struct {
	Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedRepository wraps inner with a Redis cache.
func NewCachedRepository(inner Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if inner == nil {
		panic("business: inner repository required")
	}
	if client == nil {
		panic("business: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{Repository: inner, redis: client, ttl: ttl, logger: logger}
}

func businessKey(id string) string  { return fmt.Sprintf("business:profile:%s", id) }
func assistantKey(id string) string { return fmt.Sprintf("business:assistant:%s", id) }
func hoursKey(id string) string     { return fmt.Sprintf("business:hours:%s", id) }

func (c *CachedRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	var b Business
	if c.load(ctx, businessKey(id), &b) {
		return &b, nil
	}
	out, err := c.Repository.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, businessKey(id), out)
	return out, nil
}

func (c *CachedRepository) GetAssistantConfig(ctx context.Context, businessID string) (*AssistantConfig, error) {
	var cfg AssistantConfig
	if c.load(ctx, assistantKey(businessID), &cfg) {
		return &cfg, nil
	}
	out, err := c.Repository.GetAssistantConfig(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, assistantKey(businessID), out)
	return out, nil
}

func (c *CachedRepository) SaveAssistantConfig(ctx context.Context, cfg *AssistantConfig) error {
	if err := c.Repository.SaveAssistantConfig(ctx, cfg); err != nil {
		return err
	}
	c.invalidate(ctx, assistantKey(cfg.BusinessID))
	return nil
}

func (c *CachedRepository) ListHours(ctx context.Context, businessID string) ([]Hours, error) {
	var hours []Hours
	if c.load(ctx, hoursKey(businessID), &hours) {
		return hours, nil
	}
	out, err := c.Repository.ListHours(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, hoursKey(businessID), out)
	return out, nil
}

func (c *CachedRepository) ReplaceHours(ctx context.Context, businessID string, hours []Hours) error {
	if err := c.Repository.ReplaceHours(ctx, businessID, hours); err != nil {
		return err
	}
	c.invalidate(ctx, hoursKey(businessID))
	return nil
}

// load reports a cache hit. Redis failures degrade to a miss.
func (c *CachedRepository) load(ctx context.Context, key string, dest any) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("business cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("business cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedRepository) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("business cache write failed", "key", key, "error", err)
	}
}

func (c *CachedRepository) invalidate(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("business cache invalidate failed", "key", key, "error", err)
	}
}

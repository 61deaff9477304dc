package profile

import (
	"context"
	"errors"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

// RedisStore keeps each profile as a JSON string under "<prefix>:<name>".
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisStore creates the client lazily; connection problems surface as absent
// profiles on first use rather than at construction.
func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "swapflow:profile"
	}
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Address,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
	})
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL, log: logger.Named("profile_store")}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + sanitizeName(name)
}

// Save stores the profile; the key expires after the configured TTL when set.
func (s *RedisStore) Save(ctx context.Context, name string, profile *schemas.BrowserProfile) {
	if profile == nil {
		s.log.Warn("Refusing to save nil profile", zap.String("name", name))
		return
	}
	data, err := json.Marshal(stamp(name, profile))
	if err != nil {
		s.log.Warn("Failed to encode profile", zap.String("name", name), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.key(name), data, s.ttl).Err(); err != nil {
		s.log.Warn("Failed to persist profile to redis", zap.String("name", name), zap.Error(err))
	}
}

// Load returns absent for missing keys, connection errors and corrupt values.
func (s *RedisStore) Load(ctx context.Context, name string) (*schemas.BrowserProfile, bool) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Failed to read profile from redis", zap.String("name", name), zap.Error(err))
		}
		return nil, false
	}
	var profile schemas.BrowserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		s.log.Warn("Discarding corrupt profile", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	return &profile, true
}

// Exists checks the key without decoding it.
func (s *RedisStore) Exists(ctx context.Context, name string) bool {
	n, err := s.client.Exists(ctx, s.key(name)).Result()
	if err != nil {
		s.log.Warn("Failed to check profile in redis", zap.String("name", name), zap.Error(err))
		return false
	}
	return n > 0
}

// Delete removes the key.
func (s *RedisStore) Delete(ctx context.Context, name string) {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		s.log.Warn("Failed to delete profile from redis", zap.String("name", name), zap.Error(err))
	}
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

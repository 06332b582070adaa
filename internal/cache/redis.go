package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/isdelr/milligram-be/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	opTimeout     = 2 * time.Second
	profilePrefix = "milligram:profile:"
)

// ProfileCache stores sanitized user profiles in Redis.
type ProfileCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProfileCache connects to Redis and verifies the connection.
func NewProfileCache(ctx context.Context, addr, password string, ttl time.Duration) (*ProfileCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewProfileCacheWithClient(rdb, ttl), nil
}

// NewProfileCacheWithClient wraps an existing client.
func NewProfileCacheWithClient(rdb *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{rdb: rdb, ttl: ttl}
}

func profileKey(username string) string {
	return profilePrefix + username
}

// GetProfile returns the cached profile. Misses and errors both report false.
func (c *ProfileCache) GetProfile(ctx context.Context, username string) (models.User, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	b, err := c.rdb.Get(ctx, profileKey(username)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("username", username).Msg("Profile cache read failed")
		}
		return models.User{}, false
	}

	var user models.User
	if err := json.Unmarshal(b, &user); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("Discarding corrupt cached profile")
		return models.User{}, false
	}
	return user, true
}

// SetProfile caches user until the TTL expires. The password hash is never serialized.
func (c *ProfileCache) SetProfile(ctx context.Context, user models.User) {
	b, err := json.Marshal(user)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, profileKey(user.Username), b, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("Profile cache write failed")
	}
}

// Ping reports whether Redis is reachable.
func (c *ProfileCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *ProfileCache) Close() error {
	return c.rdb.Close()
}

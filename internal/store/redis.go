package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/types"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each user's record as one JSON string key, which lets
// several bot processes share conversation state.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	loc    *time.Location
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithTTL expires records that are not written for ttl. Zero keeps them.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		b.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) {
		b.prefix = prefix
	}
}

// WithLocation sets the zone used for naive timestamps.
func WithLocation(loc *time.Location) RedisOption {
	return func(b *RedisBackend) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// NewRedisBackend wraps client.
func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		client: client,
		prefix: "ghost:context:",
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) key(userID int64) string {
	return b.prefix + strconv.FormatInt(userID, 10)
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, userID int64) (*types.ConversationState, error) {
	data, err := b.client.Get(ctx, b.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		logging.StoreError("redis get failed for user %d: %v", userID, err)
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return DecodeRecord(data, b.loc)
}

// Upsert implements Backend.
func (b *RedisBackend) Upsert(ctx context.Context, state *types.ConversationState) error {
	data, err := EncodeRecord(state, b.loc)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key(state.UserID), data, b.ttl).Err(); err != nil {
		logging.StoreError("redis set failed for user %d: %v", state.UserID, err)
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, userID int64) (bool, error) {
	n, err := b.client.Del(ctx, b.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del failed: %w", err)
	}
	return n > 0, nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

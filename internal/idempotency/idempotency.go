// Package idempotency deduplicates client requests by a caller-supplied key.
// A key is claimed before the work starts and holds the work's result for the
// configured window once it completes.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iurnickita/importcredit/internal/idempotency/config"
)

var ErrInProgress = errors.New("request with this key is still in progress")

const (
	keyPrefix    = "importcredit:request:"
	pendingValue = "pending"
	donePrefix   = "done:"
	defaultTTL   = 24 * time.Hour
)

type Keeper interface {
	// Begin claims key. When the key already completed, Begin returns its result
	// and done = true.
	Begin(ctx context.Context, key string) (result string, done bool, err error)
	Complete(ctx context.Context, key string, result string) error
	// Abort frees the key after a failed attempt so the client can retry.
	Abort(ctx context.Context, key string) error
}

// NewKeeper connects to Redis, or returns a keeper that never deduplicates
// when no address is configured.
func NewKeeper(ctx context.Context, cfg config.Config) (Keeper, error) {
	if cfg.RedisAddr == "" {
		return nopKeeper{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisKeeper(client, cfg.TTL), nil
}

type redisKeeper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisKeeper(client *redis.Client, ttl time.Duration) Keeper {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisKeeper{client: client, ttl: ttl}
}

func (k *redisKeeper) Begin(ctx context.Context, key string) (string, bool, error) {
	claimed, err := k.client.SetNX(ctx, keyPrefix+key, pendingValue, k.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if claimed {
		return "", false, nil
	}

	val, err := k.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return "", false, ErrInProgress
	}
	if err != nil {
		return "", false, err
	}
	if result, ok := strings.CutPrefix(val, donePrefix); ok {
		return result, true, nil
	}
	return "", false, ErrInProgress
}

func (k *redisKeeper) Complete(ctx context.Context, key string, result string) error {
	return k.client.Set(ctx, keyPrefix+key, donePrefix+result, k.ttl).Err()
}

func (k *redisKeeper) Abort(ctx context.Context, key string) error {
	return k.client.Del(ctx, keyPrefix+key).Err()
}

type nopKeeper struct{}

func (nopKeeper) Begin(context.Context, string) (string, bool, error) { return "", false, nil }
func (nopKeeper) Complete(context.Context, string, string) error      { return nil }
func (nopKeeper) Abort(context.Context, string) error                 { return nil }

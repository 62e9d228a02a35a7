package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/pricing"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on redis. TTL eviction is redis-native, and the
// one-shot consume rides on GETDEL so two concurrent callers can never both
// receive the same session. A short-lived tombstone key distinguishes a
// replayed id from an unknown one.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Create(ctx context.Context, cart *pricing.PricedCart, customerRef string) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	sess := Session{
		ID:          id,
		Cart:        cart,
		CustomerRef: customerRef,
		CreatedAt:   time.Now(),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session failed: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(id), data, SessionTTL).Err(); err != nil {
		return "", fmt.Errorf("redis set failed: %w", err)
	}
	return id, nil
}

func (r *RedisStore) Consume(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.GetDel(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		seen, e2 := r.client.Exists(ctx, consumedKey(sessionID)).Result()
		if e2 != nil {
			return nil, fmt.Errorf("redis exists failed: %w", e2)
		}
		if seen > 0 {
			return nil, ErrSessionConsumed
		}
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel failed: %w", err)
	}

	// Tombstone so a replayed id reports "consumed" rather than "not found".
	if err := r.client.Set(ctx, consumedKey(sessionID), "1", SessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("redis set tombstone failed: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &sess, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func sessionKey(id string) string {
	return fmt.Sprintf("checkout:session:%s", id)
}

func consumedKey(id string) string {
	return fmt.Sprintf("checkout:consumed:%s", id)
}

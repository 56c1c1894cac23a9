package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"medguard/internal/identity/models"
	"medguard/pkg/platform/sentinel"
)

const sessionKeyPrefix = "session:addr:"

// RedisSessionStore is a Redis-backed session store for distributed
// deployments. Redis TTL handles hard expiry; the service still checks
// session age so both stores behave identically at the boundary.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Save(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKeyPrefix + strings.ToLower(session.Address)
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w: %w", err, sentinel.ErrUnavailable)
	}
	return nil
}

func (s *RedisSessionStore) Find(ctx context.Context, address string) (models.Session, error) {
	key := sessionKeyPrefix + strings.ToLower(address)
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, fmt.Errorf("session for %s: %w", address, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w: %w", err, sentinel.ErrUnavailable)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, address string) error {
	key := sessionKeyPrefix + strings.ToLower(address)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete session: %w: %w", err, sentinel.ErrUnavailable)
	}
	return nil
}

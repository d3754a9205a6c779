package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/domain"
	"kycflow/pkg/platform/sentinel"
)

const sessionKeyPrefix = "kycflow:session:"

// RedisStore keeps sessions as JSON with a TTL so abandoned flows expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets how long an untouched session is kept.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: 24 * time.Hour}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Save writes the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, session *domain.VerificationSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, verificationID string) (*domain.VerificationSession, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+verificationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", verificationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", verificationID, err)
	}
	var session domain.VerificationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", verificationID, err)
	}
	return &session, nil
}

func (s *RedisStore) Delete(ctx context.Context, verificationID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+verificationID).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", verificationID, err)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"spothot/internal/verification/models"
	"spothot/pkg/platform/sentinel"
)

const (
	// Redis key prefix for challenge codes
	challengeKeyPrefix = "verify:code:"
)

// RedisStore keeps challenges in Redis with a TTL. Expiry enforcement still
// happens in the service against CreatedAt; the TTL only garbage-collects
// rows, so it is set with slack past the redemption window.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed challenge store. The TTL should exceed
// the redemption window so the service, not key eviction, decides expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

type challengeRecord struct {
	IdentityID uuid.UUID `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *RedisStore) Create(ctx context.Context, challenge *models.Challenge) error {
	payload, err := json.Marshal(challengeRecord{
		IdentityID: challenge.IdentityID,
		CreatedAt:  challenge.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	// SET NX doubles as the uniqueness check.
	ok, err := s.client.SetNX(ctx, challengeKeyPrefix+challenge.Code, payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	if !ok {
		return fmt.Errorf("challenge code collision: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) FindByCode(ctx context.Context, code string) (*models.Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}

	var record challengeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &models.Challenge{
		Code:       code,
		IdentityID: record.IdentityID,
		CreatedAt:  record.CreatedAt,
	}, nil
}

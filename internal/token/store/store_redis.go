package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"onboarding/internal/token"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

const keyPrefix = "onboarding:refresh:"

// RedisRefreshStore keeps refresh token records in Redis with a TTL matching
// their expiry, so abandoned tokens disappear on their own.
type RedisRefreshStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

type redisRecord struct {
	Role          string    `json:"role"`
	ApplicationID string    `json:"application_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *RedisRefreshStore) Save(ctx context.Context, record token.RefreshRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	rec := redisRecord{Role: string(record.Role), ExpiresAt: record.ExpiresAt}
	if !record.Subject.ApplicationID.IsNil() {
		rec.ApplicationID = record.Subject.ApplicationID.String()
	}
	if !record.Subject.UserID.IsNil() {
		rec.UserID = record.Subject.UserID.String()
	}
	if !record.Subject.SessionID.IsNil() {
		rec.SessionID = record.Subject.SessionID.String()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+record.Hash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh record: %w", err)
	}
	return nil
}

// Consume reads and deletes the record in one GETDEL.
func (s *RedisRefreshStore) Consume(ctx context.Context, hash string, now time.Time) (*token.RefreshRecord, error) {
	payload, err := s.client.GetDel(ctx, keyPrefix+hash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("consume refresh record: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal refresh record: %w", err)
	}
	if now.After(rec.ExpiresAt) {
		return nil, sentinel.ErrExpired
	}

	record := &token.RefreshRecord{Hash: hash, Role: token.Role(rec.Role), ExpiresAt: rec.ExpiresAt}
	if rec.ApplicationID != "" {
		if record.Subject.ApplicationID, err = id.ParseApplicationID(rec.ApplicationID); err != nil {
			return nil, fmt.Errorf("stored application id: %w", err)
		}
	}
	if rec.UserID != "" {
		if record.Subject.UserID, err = id.ParseUserID(rec.UserID); err != nil {
			return nil, fmt.Errorf("stored user id: %w", err)
		}
	}
	if rec.SessionID != "" {
		if record.Subject.SessionID, err = id.ParseSessionID(rec.SessionID); err != nil {
			return nil, fmt.Errorf("stored session id: %w", err)
		}
	}
	return record, nil
}

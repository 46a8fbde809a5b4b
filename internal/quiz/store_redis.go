package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "quiz:session:"
	redisTimeout     = 3 * time.Second
)

// RedisStore is a Redis-backed SessionStore. Expiry is delegated to the
// key TTL: Start sets it once and Update keeps the original deadline, so a
// session never outlives its creation time plus the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store with the given TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Start(userID string, startIdx int) (Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	sess := Session{
		UserID:      userID,
		QuestionIdx: startIdx,
		Score:       0,
		CreatedAt:   time.Now(),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Get(userID string) (Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("session read failed", "user_id", userID, "error", err)
		}
		return Session{}, false
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		slog.Error("corrupt session payload, evicting", "user_id", userID, "error", err)
		s.Clear(userID)
		return Session{}, false
	}
	return sess, true
}

func (s *RedisStore) Update(userID string, mutate func(*Session)) (Session, error) {
	sess, ok := s.Get(userID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	mutate(&sess)

	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	// KEEPTTL: the expiry deadline stays fixed at creation time.
	if err := s.client.Set(ctx, sessionKey(userID), data, redis.KeepTTL).Err(); err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Clear(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		slog.Error("session delete failed", "user_id", userID, "error", err)
	}
}

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

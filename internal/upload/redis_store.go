package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStoreConfig configures the Redis-backed session store.
type RedisStoreConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore persists sessions in Redis so several server processes can share
// one upload in flight. Expiry is delegated to Redis key TTLs, which makes
// PurgeExpired a no-op.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection before
// returning the store.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "dosepics:upload"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, keyPrefix: prefix}, nil
}

func (s *RedisStore) key(token string) string {
	return s.keyPrefix + ":" + token
}

func (s *RedisStore) Save(ctx context.Context, session Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode upload session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save upload session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Session, bool, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	} else if err != nil {
		return Session{}, false, fmt.Errorf("load upload session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, false, fmt.Errorf("decode upload session: %w", err)
	}
	return session, true, nil
}

// redisAppendAttempts bounds the optimistic retries when concurrent appends
// for one token collide on the watched key.
const redisAppendAttempts = 16

// Append runs the read-modify-write as a WATCH/MULTI transaction, so a
// concurrent append from another process invalidates this one instead of
// being overwritten; the losing side retries against the fresh session.
func (s *RedisStore) Append(ctx context.Context, token string, chunk []byte, ttl time.Duration) (Session, bool, error) {
	key := s.key(token)
	for attempt := 0; attempt < redisAppendAttempts; attempt++ {
		var (
			session Session
			found   bool
		)
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			payload, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			} else if err != nil {
				return fmt.Errorf("load upload session: %w", err)
			}
			if err := json.Unmarshal(payload, &session); err != nil {
				return fmt.Errorf("decode upload session: %w", err)
			}
			found = true

			session.Chunks = append(session.Chunks, chunk)
			session.UpdatedAt = time.Now().UTC()

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if session.Complete() {
					pipe.Del(ctx, key)
					return nil
				}
				encoded, err := json.Marshal(session)
				if err != nil {
					return fmt.Errorf("encode upload session: %w", err)
				}
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Session{}, false, err
		}
		return session, found, nil
	}
	return Session{}, false, fmt.Errorf("append upload session: retries exhausted")
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("delete upload session: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op; Redis evicts sessions via key TTL.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) error {
	return nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

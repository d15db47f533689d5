package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"supportdesk/pkg/types"
)

// Store receives mirrored dispatcher state
type Store interface {
	Reset(ctx context.Context) error
	WriteQueue(ctx context.Context, snapshot types.QueueSnapshot) error
	PutSession(ctx context.Context, session types.Session) error
	DeleteSession(ctx context.Context, roomID string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisConfig locates the Redis server and key namespace
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	OpTimeout time.Duration
}

// RedisStore writes the queue snapshot and live sessions under KeyPrefix.
//
//	<prefix>:queue          string  JSON snapshot {category: [entry]}
//	<prefix>:queue:counts   hash    category -> waiting count
//	<prefix>:sessions       hash    roomId -> JSON session
type RedisStore struct {
	rdb       *goredis.Client
	queueKey  string
	countsKey string
	sessKey   string
	opTimeout time.Duration
}

// NewRedisStore creates a client; no connection is made until first use
func NewRedisStore(cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "supportdesk"
	}
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     16,
		MinIdleConns: 2,
		PoolTimeout:  time.Second,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      1,
		MinRetryBackoff: 25 * time.Millisecond,
		MaxRetryBackoff: 250 * time.Millisecond,
	})

	return newRedisStore(rdb, prefix, timeout)
}

func newRedisStore(rdb *goredis.Client, prefix string, timeout time.Duration) *RedisStore {
	return &RedisStore{
		rdb:       rdb,
		queueKey:  prefix + ":queue",
		countsKey: prefix + ":queue:counts",
		sessKey:   prefix + ":sessions",
		opTimeout: timeout,
	}
}

// Reset drops mirrored state left by a previous process
func (s *RedisStore) Reset(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, s.queueKey, s.countsKey, s.sessKey).Err(); err != nil {
		return wrap("Reset", err)
	}
	return nil
}

// WriteQueue replaces the snapshot and counts atomically
func (s *RedisStore) WriteQueue(ctx context.Context, snapshot types.QueueSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode queue snapshot: %w", err)
	}

	counts := make(map[string]interface{}, len(snapshot)+1)
	for category, entries := range snapshot {
		counts[category] = len(entries)
	}
	counts["total"] = snapshot.Total()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.queueKey, data, 0)
	pipe.Del(ctx, s.countsKey)
	pipe.HSet(ctx, s.countsKey, counts)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("WriteQueue", err)
	}
	return nil
}

// PutSession records a live session
func (s *RedisStore) PutSession(ctx context.Context, session types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.HSet(ctx, s.sessKey, session.RoomID, data).Err(); err != nil {
		return wrap("PutSession", err)
	}
	return nil
}

// DeleteSession removes an ended session
func (s *RedisStore) DeleteSession(ctx context.Context, roomID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.HDel(ctx, s.sessKey, roomID).Err(); err != nil {
		return wrap("DeleteSession", err)
	}
	return nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Close releases the client pool
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.opTimeout > 0 {
		return context.WithTimeout(ctx, s.opTimeout)
	}
	return ctx, func() {}
}

func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("redis %s timeout/cancel: %w", op, err)
	}
	return fmt.Errorf("redis %s failed: %w", op, err)
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements storage.DocumentStore using Redis hashes, so several
// machines of the same user can share one history.
type Store struct {
	client    *redis.Client
	keyPrefix string
	putScript *redis.Script
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		putScript: redis.NewScript(putDocumentScript),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the document body stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.documentKey(key), fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	return data, nil
}

// Put replaces the document and bumps its revision in one script call.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	keys := []string{s.documentKey(key)}
	args := []interface{}{data, time.Now().UTC().Format(time.RFC3339Nano)}
	if err := s.putScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("put document %s: %w", key, err)
	}
	return nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.client.Del(ctx, s.documentKey(key)).Result()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Revision returns how many times the document has been written.
func (s *Store) Revision(ctx context.Context, key string) (int64, error) {
	rev, err := s.client.HGet(ctx, s.documentKey(key), fieldRevision).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, storage.ErrNotFound
	}
	return rev, err
}

// Keys lists the stored document keys.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	prefix := s.documentKey("")
	keys := make([]string, 0)
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) documentKey(key string) string {
	return fmt.Sprintf("%shistory:%s", s.keyPrefix, key)
}

var (
	_ storage.Lister     = (*Store)(nil)
	_ storage.Revisioner = (*Store)(nil)
)

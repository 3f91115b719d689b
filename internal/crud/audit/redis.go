package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis sink configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Key is the list entries are pushed onto
	Key string
	// MaxEntries trims the list after every write; 0 keeps everything
	MaxEntries int64
}

// DefaultRedisConfig returns a default Redis sink configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		Key:        "crudkit:audit",
		MaxEntries: 10000,
	}
}

// RedisSink pushes JSON entries onto a Redis list, newest first
type RedisSink struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisSink connects to Redis and verifies the connection
func NewRedisSink(config RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisSinkWithClient(client, config), nil
}

// NewRedisSinkWithClient creates a sink with an existing client
func NewRedisSinkWithClient(client *redis.Client, config RedisConfig) *RedisSink {
	if config.Key == "" {
		config.Key = DefaultRedisConfig().Key
	}
	return &RedisSink{client: client, config: config}
}

// Write pushes an entry and trims the list
func (r *RedisSink) Write(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.config.Key, data)
	if r.config.MaxEntries > 0 {
		pipe.LTrim(ctx, r.config.Key, 0, r.config.MaxEntries-1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (r *RedisSink) Recent(ctx context.Context, n int64) ([]Entry, error) {
	stop := n - 1
	if n <= 0 {
		stop = -1
	}
	raw, err := r.client.LRange(ctx, r.config.Key, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Len returns the number of stored entries
func (r *RedisSink) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.config.Key).Result()
}

// Close closes the Redis connection
func (r *RedisSink) Close() error {
	return r.client.Close()
}

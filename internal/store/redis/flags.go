package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stratify/internal/types"

	goredis "github.com/go-redis/redis/v8"
)

const marketInfoTTL = 30 * time.Minute

// Config configures the Redis flag store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store holds the shared cross-process state: per-execution running
// flags polled by workers, and a short-lived market-info cache so
// repeated start requests do not hammer the venue.
type Store struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

func runKey(executionID int64) string {
	return fmt.Sprintf("execution:%d:running", executionID)
}

// SetRunning flips the cooperative cancellation flag for one execution.
func (s *Store) SetRunning(ctx context.Context, executionID int64, running bool) error {
	val := "0"
	if running {
		val = "1"
	}
	if err := s.client.Set(ctx, runKey(executionID), val, 0).Err(); err != nil {
		return fmt.Errorf("redis set running flag: %w", err)
	}
	return nil
}

// IsRunning reports the flag; a missing key means not running.
func (s *Store) IsRunning(ctx context.Context, executionID int64) (bool, error) {
	val, err := s.client.Get(ctx, runKey(executionID)).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get running flag: %w", err)
	}
	return val == "1", nil
}

func marketKey(exchange, symbol string) string {
	return fmt.Sprintf("market:%s:%s", exchange, symbol)
}

// CacheMarketInfo stores venue fee/leverage data with a short TTL.
func (s *Store) CacheMarketInfo(ctx context.Context, exchange string, info types.MarketInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal market info: %w", err)
	}
	if err := s.client.Set(ctx, marketKey(exchange, info.Symbol), data, marketInfoTTL).Err(); err != nil {
		return fmt.Errorf("redis cache market info: %w", err)
	}
	return nil
}

// GetMarketInfo returns the cached entry, or (nil, nil) on a miss.
func (s *Store) GetMarketInfo(ctx context.Context, exchange, symbol string) (*types.MarketInfo, error) {
	data, err := s.client.Get(ctx, marketKey(exchange, symbol)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get market info: %w", err)
	}
	var info types.MarketInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal market info: %w", err)
	}
	return &info, nil
}

func (s *Store) Close() error { return s.client.Close() }

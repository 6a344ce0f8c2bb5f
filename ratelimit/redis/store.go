package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

/* Redis implementation of the primary quota counter.
 * Counters are shared across instances; a key lives for exactly one window
 * via INCR + PEXPIRE on first touch.
 */

const keyPrefix = "ratelimit" // Key naming: ratelimit:{class}:{identity}

type Store struct {
	client *redis.Client
}

// NewStore creates a Redis counter store and verifies connectivity.
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client, for shared connections.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Incr atomically increments the counter for key, starting a new window
// when the key is absent or expired.
func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	redisKey := fmt.Sprintf("%s:%s", keyPrefix, key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incrementing counter: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("setting counter expiry: %w", err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("reading counter expiry: %w", err)
	}
	if ttl < 0 {
		// Expiry was lost (e.g. a crash between INCR and PEXPIRE);
		// restore it so the key cannot live forever.
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("restoring counter expiry: %w", err)
		}
		ttl = window
	}

	return count, time.Now().Add(ttl), nil
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

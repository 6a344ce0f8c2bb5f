package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/frontdeskhq/resilience/retry"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of retry.Store
 * Uses a Hash per failure and a sorted set scored by next_retry_at as the
 * due index. Claiming runs as a Lua script so checking the previous lease
 * and taking a new one is a single atomic step: two workers can never hold
 * the same row at once.
 */

const (
	hashPrefix = "failure"      // Hash naming: failure:{failure_id}
	dueKey     = "failures:due" // ZSet of unresolved failure IDs scored by next_retry_at
)

// claimScript leases due, unclaimed failures up to the requested limit.
// KEYS[1] = due zset; ARGV = now, leaseUntil, limit, hash prefix.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
local claimed = {}
for _, id in ipairs(due) do
	local key = ARGV[4] .. ':' .. id
	local claimedUntil = tonumber(redis.call('HGET', key, 'claimed_until') or '0')
	if claimedUntil < tonumber(ARGV[1]) then
		redis.call('HSET', key, 'claimed_until', ARGV[2])
		claimed[#claimed+1] = id
	end
end
return claimed
`)

type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis failed-delivery store
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
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

// Record persists a new failure and schedules it in the due index
func (s *Store) Record(ctx context.Context, failure retry.FailedDelivery) error {
	if err := failure.Source.Validate(); err != nil {
		return fmt.Errorf("validating failure source: %w", err)
	}

	hashKey := fmt.Sprintf("%s:%s", hashPrefix, failure.ID)
	err := s.client.HSet(ctx, hashKey, map[string]interface{}{
		"id":              failure.ID,
		"source":          failure.Source.String(),
		"provider":        failure.Provider,
		"subscription_id": failure.SubscriptionID,
		"event_type":      failure.EventType,
		"payload":         failure.Payload,
		"payload_digest":  failure.PayloadDigest,
		"error":           failure.Error,
		"first_failed_at": failure.FirstFailedAt.Unix(),
		"attempt_count":   failure.AttemptCount,
		"next_retry_at":   failure.NextRetryAt.Unix(),
		"claimed_until":   0,
	}).Err()
	if err != nil {
		return fmt.Errorf("storing failed delivery: %w", err)
	}

	err = s.client.ZAdd(ctx, dueKey, redis.Z{
		Score:  float64(failure.NextRetryAt.Unix()),
		Member: failure.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling failed delivery: %w", err)
	}
	return nil
}

// ClaimDue atomically leases up to limit due failures
func (s *Store) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]retry.FailedDelivery, error) {
	ids, err := claimScript.Run(ctx, s.client, []string{dueKey},
		now.Unix(), now.Add(lease).Unix(), limit, hashPrefix).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming due failures: %w", err)
	}

	failures := make([]retry.FailedDelivery, 0, len(ids))
	for _, id := range ids {
		failure, err := s.Get(ctx, id)
		if err != nil {
			// Claimed but unreadable; the lease will expire and another
			// pass can retry it.
			continue
		}
		failures = append(failures, failure)
	}
	return failures, nil
}

// Get retrieves a failure by ID
func (s *Store) Get(ctx context.Context, id string) (retry.FailedDelivery, error) {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	data, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return retry.FailedDelivery{}, fmt.Errorf("getting failed delivery: %w", err)
	}
	if len(data) == 0 {
		return retry.FailedDelivery{}, fmt.Errorf("failed delivery not found: %s", id)
	}

	return parseFailure(data), nil
}

// MarkResolved finalizes a successfully replayed failure
func (s *Store) MarkResolved(ctx context.Context, id string, at time.Time) error {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	if err := s.client.HSet(ctx, hashKey, "resolved_at", at.Unix()).Err(); err != nil {
		return fmt.Errorf("marking failure resolved: %w", err)
	}
	if err := s.client.ZRem(ctx, dueKey, id).Err(); err != nil {
		return fmt.Errorf("removing failure from due index: %w", err)
	}
	return nil
}

// Reschedule records a failed replay attempt and its next due time
func (s *Store) Reschedule(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time) error {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	err := s.client.HSet(ctx, hashKey, map[string]interface{}{
		"attempt_count": attemptCount,
		"next_retry_at": nextRetryAt.Unix(),
		"claimed_until": 0,
	}).Err()
	if err != nil {
		return fmt.Errorf("rescheduling failure: %w", err)
	}

	err = s.client.ZAdd(ctx, dueKey, redis.Z{
		Score:  float64(nextRetryAt.Unix()),
		Member: id,
	}).Err()
	if err != nil {
		return fmt.Errorf("updating due index: %w", err)
	}
	return nil
}

// MarkAbandoned moves a failure to its terminal failed state.
// The row is kept for operator inspection, only the due index entry goes.
func (s *Store) MarkAbandoned(ctx context.Context, id string, at time.Time) error {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	if err := s.client.HSet(ctx, hashKey, "abandoned_at", at.Unix()).Err(); err != nil {
		return fmt.Errorf("marking failure abandoned: %w", err)
	}
	if err := s.client.ZRem(ctx, dueKey, id).Err(); err != nil {
		return fmt.Errorf("removing failure from due index: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

func parseFailure(data map[string]string) retry.FailedDelivery {
	failure := retry.FailedDelivery{
		ID:             data["id"],
		Source:         retry.NewSource(data["source"]),
		Provider:       data["provider"],
		SubscriptionID: data["subscription_id"],
		EventType:      data["event_type"],
		Payload:        []byte(data["payload"]),
		PayloadDigest:  data["payload_digest"],
		Error:          data["error"],
		FirstFailedAt:  time.Unix(parseInt64(data["first_failed_at"]), 0),
		AttemptCount:   int(parseInt64(data["attempt_count"])),
		NextRetryAt:    time.Unix(parseInt64(data["next_retry_at"]), 0),
	}
	if ts := parseInt64(data["resolved_at"]); ts > 0 {
		failure.ResolvedAt = time.Unix(ts, 0)
	}
	if ts := parseInt64(data["abandoned_at"]); ts > 0 {
		failure.AbandonedAt = time.Unix(ts, 0)
	}
	if ts := parseInt64(data["claimed_until"]); ts > 0 {
		failure.ClaimedUntil = time.Unix(ts, 0)
	}
	return failure
}

// parseInt64 parses a string to int64, returning 0 on error
func parseInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val
}

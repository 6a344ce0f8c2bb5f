package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/frontdeskhq/resilience/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Registry
 * Uses Redis Hashes for subscription records and a Set per tenant as the
 * ownership index.
 */

const (
	hashPrefix   = "subscription"         // Hash naming: subscription:{subscription_id}
	tenantPrefix = "tenant:subscriptions" // Set naming: tenant:subscriptions:{tenant_id}
)

type Registry struct {
	client *redis.Client
}

// NewRegistry creates a new Redis subscription registry
func NewRegistry(addr, password string, db int) (*Registry, error) {
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

	return &Registry{client: client}, nil
}

// NewRegistryWithClient wraps an existing client, for shared connections.
func NewRegistryWithClient(client *redis.Client) *Registry {
	return &Registry{client: client}
}

// Store persists a subscription and indexes it under its tenant
func (r *Registry) Store(ctx context.Context, sub webhook.Subscription) error {
	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("marshaling event types: %w", err)
	}

	hashKey := fmt.Sprintf("%s:%s", hashPrefix, sub.ID)
	err = r.client.HSet(ctx, hashKey, map[string]interface{}{
		"id":         sub.ID,
		"tenant_id":  sub.TenantID,
		"url":        sub.URL,
		"events":     string(eventsJSON),
		"secret":     sub.Secret,
		"is_active":  strconv.FormatBool(sub.IsActive),
		"created_at": sub.CreatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing subscription: %w", err)
	}

	tenantKey := fmt.Sprintf("%s:%s", tenantPrefix, sub.TenantID)
	if err := r.client.SAdd(ctx, tenantKey, sub.ID).Err(); err != nil {
		return fmt.Errorf("indexing subscription for tenant: %w", err)
	}

	return nil
}

// Get retrieves a subscription by ID
func (r *Registry) Get(ctx context.Context, id string) (webhook.Subscription, error) {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	data, err := r.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return webhook.Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	if len(data) == 0 {
		return webhook.Subscription{}, fmt.Errorf("subscription not found: %s", id)
	}

	return parseSubscription(data)
}

// ListByTenant retrieves all subscriptions owned by a tenant
func (r *Registry) ListByTenant(ctx context.Context, tenantID string) ([]webhook.Subscription, error) {
	tenantKey := fmt.Sprintf("%s:%s", tenantPrefix, tenantID)

	ids, err := r.client.SMembers(ctx, tenantKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tenant subscriptions: %w", err)
	}

	subs := make([]webhook.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.Get(ctx, id)
		if err != nil {
			// A dangling index entry (record expired or deleted mid-scan)
			// should not break the whole listing.
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// SetActive flips the active flag on a subscription
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	exists, err := r.client.Exists(ctx, hashKey).Result()
	if err != nil {
		return fmt.Errorf("checking subscription: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("subscription not found: %s", id)
	}

	if err := r.client.HSet(ctx, hashKey, "is_active", strconv.FormatBool(active)).Err(); err != nil {
		return fmt.Errorf("updating subscription active flag: %w", err)
	}
	return nil
}

// Delete removes a subscription and its tenant index entry
func (r *Registry) Delete(ctx context.Context, id string) error {
	sub, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)
	if err := r.client.Del(ctx, hashKey).Err(); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}

	tenantKey := fmt.Sprintf("%s:%s", tenantPrefix, sub.TenantID)
	if err := r.client.SRem(ctx, tenantKey, id).Err(); err != nil {
		return fmt.Errorf("removing subscription from tenant index: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *Registry) Close(ctx context.Context) error {
	return r.client.Close()
}

func parseSubscription(data map[string]string) (webhook.Subscription, error) {
	var events []webhook.EventType
	if eventsStr, ok := data["events"]; ok && eventsStr != "" {
		if err := json.Unmarshal([]byte(eventsStr), &events); err != nil {
			return webhook.Subscription{}, fmt.Errorf("unmarshaling event types: %w", err)
		}
	}

	isActive, _ := strconv.ParseBool(data["is_active"])

	return webhook.Subscription{
		ID:        data["id"],
		TenantID:  data["tenant_id"],
		URL:       data["url"],
		Events:    events,
		Secret:    data["secret"],
		IsActive:  isActive,
		CreatedAt: time.Unix(parseInt64(data["created_at"]), 0),
	}, nil
}

// parseInt64 parses a string to int64, returning 0 on error
func parseInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val
}

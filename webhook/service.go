package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/frontdeskhq/resilience/signature"
	"github.com/google/uuid"
)

/* Service represents the subscription management layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the business operations for subscription management
type UseCase interface {
	Create(ctx context.Context, tenantID, url string, events []EventType) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Subscription, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	Repo Registry
}

// NewService creates a new subscription service with dependency injection
func NewService(repo Registry) *Service {
	return &Service{
		Repo: repo,
	}
}

// Create registers a new subscription. The signing secret is generated here
// and returned exactly once; reads mask it.
func (s *Service) Create(ctx context.Context, tenantID, url string, events []EventType) (Subscription, error) {
	secret, err := signature.GenerateSecret()
	if err != nil {
		return Subscription{}, fmt.Errorf("generating signing secret: %w", err)
	}

	sub := Subscription{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		URL:       url,
		Events:    events,
		Secret:    secret,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := sub.Validate(); err != nil {
		return Subscription{}, fmt.Errorf("validating subscription: %w", err)
	}

	if err := s.Repo.Store(ctx, sub); err != nil {
		return Subscription{}, fmt.Errorf("storing subscription: %w", err)
	}

	return sub, nil
}

// Get retrieves a subscription with its secret masked.
func (s *Service) Get(ctx context.Context, id string) (Subscription, error) {
	sub, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	sub.Secret = ""
	return sub, nil
}

// ListByTenant retrieves a tenant's subscriptions with secrets masked.
func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]Subscription, error) {
	subs, err := s.Repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	for i := range subs {
		subs[i].Secret = ""
	}
	return subs, nil
}

// Deactivate turns a subscription off without deleting its configuration.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.Repo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivating subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

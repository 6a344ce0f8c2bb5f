package chi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/frontdeskhq/resilience/inbound"
	"github.com/frontdeskhq/resilience/ratelimit"
	"github.com/frontdeskhq/resilience/ratelimit/memory"
	"github.com/frontdeskhq/resilience/retry"
	"github.com/frontdeskhq/resilience/webhook"
)

/* Shared fixtures for handler tests. The router is built exactly as in
 * production, with in-memory counter stores and fake registries behind it.
 */

const (
	testRetellSecret = "retell-test-secret"
	testTenantID     = "tenant-1"
)

// memRegistry is an in-memory webhook.Registry.
type memRegistry struct {
	mu   sync.Mutex
	subs map[string]webhook.Subscription
}

func newMemRegistry() *memRegistry {
	return &memRegistry{subs: make(map[string]webhook.Subscription)}
}

func (r *memRegistry) Get(_ context.Context, id string) (webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return webhook.Subscription{}, errors.New("subscription not found")
	}
	return sub, nil
}

func (r *memRegistry) ListByTenant(_ context.Context, tenantID string) ([]webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var subs []webhook.Subscription
	for _, sub := range r.subs {
		if sub.TenantID == tenantID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (r *memRegistry) Store(_ context.Context, sub webhook.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
	return nil
}

func (r *memRegistry) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return errors.New("subscription not found")
	}
	sub.IsActive = active
	r.subs[id] = sub
	return nil
}

func (r *memRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return errors.New("subscription not found")
	}
	delete(r.subs, id)
	return nil
}

func (r *memRegistry) Close(context.Context) error { return nil }

// recordingFailures captures retry records from the handlers.
type recordingFailures struct {
	mu       sync.Mutex
	failures []retry.FailedDelivery
}

func (f *recordingFailures) Record(_ context.Context, failure retry.FailedDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure)
	return nil
}

func (f *recordingFailures) recorded() []retry.FailedDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]retry.FailedDelivery(nil), f.failures...)
}

// testFixture bundles the router and the fakes behind it.
type testFixture struct {
	router    http.Handler
	registry  *memRegistry
	failures  *recordingFailures
	processor *fakeProcessor
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed [][]byte
	err       error
}

func (p *fakeProcessor) Process(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, payload)
	return p.err
}

func testLimitTables() *ratelimit.Tables {
	normal := map[ratelimit.Class]ratelimit.Limit{
		ratelimit.WebhookInbound: {Max: 100, Window: time.Minute},
		ratelimit.Dashboard:      {Max: 5, Window: time.Minute},
	}
	degraded := map[ratelimit.Class]ratelimit.Limit{
		ratelimit.WebhookInbound: {Max: 50, Window: time.Minute},
		ratelimit.Dashboard:      {Max: 2, Window: time.Minute},
	}
	return ratelimit.NewTables(normal, degraded, nil)
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	governor := ratelimit.NewGovernor(memory.NewStore(), memory.NewStore(), testLimitTables(), zerolog.Nop())

	verifier, err := inbound.NewVerifier([]inbound.ProviderConfig{
		{Provider: "retell", Scheme: inbound.HexSHA256, Secret: testRetellSecret, Header: "X-Retell-Signature"},
	}, false, zerolog.Nop())
	require.NoError(t, err)

	registry := newMemRegistry()
	failures := &recordingFailures{}
	processor := &fakeProcessor{}

	deps := Deps{
		Governor:      governor,
		Subscriptions: webhook.NewService(registry),
		Dispatcher:    webhook.NewDispatcher(registry, failures, zerolog.Nop()),
		Verifier:      verifier,
		Processor:     processor,
		Failures:      failures,
	}

	return &testFixture{
		router:    Handlers(deps),
		registry:  registry,
		failures:  failures,
		processor: processor,
	}
}

func (f *testFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

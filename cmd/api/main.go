package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/frontdeskhq/resilience/config"
	"github.com/frontdeskhq/resilience/inbound"
	"github.com/frontdeskhq/resilience/internal/http/chi"
	"github.com/frontdeskhq/resilience/metrics"
	"github.com/frontdeskhq/resilience/ratelimit"
	"github.com/frontdeskhq/resilience/ratelimit/memory"
	ratelimitredis "github.com/frontdeskhq/resilience/ratelimit/redis"
	retryredis "github.com/frontdeskhq/resilience/retry/redis"
	"github.com/frontdeskhq/resilience/webhook"
	webhookredis "github.com/frontdeskhq/resilience/webhook/redis"
)

const TIMEOUT = 30 * time.Second

/* All wiring happens here: configuration, storage, the governor and the
 * webhook subsystem, then the HTTP surface on top. Imports flow one way
 * only: main wires the business packages, which import the storage layer.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "resilience-api").Logger()

	tables := ratelimit.DefaultTables()
	if cfg.LimitsFile != "" {
		tables, err = ratelimit.LoadTables(cfg.LimitsFile)
		if err != nil {
			fmt.Println(err)
			return
		}
	}
	if err := tables.Validate(); err != nil {
		fmt.Println(err)
		return
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancel()
		fmt.Println(fmt.Errorf("connecting to Redis: %w", err))
		return
	}
	cancel()

	recorder, err := metrics.NewRecorder()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer recorder.Shutdown(ctx)

	fallback := memory.NewStore()
	fallback.StartSweeper(ctx, time.Minute)
	governor := ratelimit.NewGovernor(
		ratelimitredis.NewStoreWithClient(client),
		fallback,
		tables,
		logger,
		ratelimit.WithRecorder(recorder),
	)

	registry := webhookredis.NewRegistryWithClient(client)
	defer registry.Close(ctx)
	subscriptions := webhook.NewService(registry)

	failures := retryredis.NewStoreWithClient(client)
	dispatcher := webhook.NewDispatcher(registry, failures, logger,
		webhook.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.DeliveryTimeoutSeconds) * time.Second}),
		webhook.WithDispatchRecorder(recorder),
	)

	verifier, err := inbound.NewVerifier(providerConfigs(cfg), cfg.IsProduction(), logger)
	if err != nil {
		fmt.Println(err)
		return
	}

	r := chi.Handlers(chi.Deps{
		Governor:      governor,
		Subscriptions: subscriptions,
		Dispatcher:    dispatcher,
		Verifier:      verifier,
		Processor:     inbound.ProcessorFunc(inbound.ValidateJSON),
		Failures:      failures,
		Metrics:       recorder,
	})

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

func providerConfigs(cfg *config.Config) []inbound.ProviderConfig {
	return []inbound.ProviderConfig{
		{
			Provider:         "stripe",
			Scheme:           inbound.TimestampedSHA256,
			Secret:           cfg.StripeWebhookSecret,
			Header:           "Stripe-Signature",
			SkipVerification: cfg.SkipWebhookVerification,
		},
		{
			Provider:         "twilio",
			Scheme:           inbound.CanonicalSHA1,
			Secret:           cfg.TwilioAuthToken,
			Header:           "X-Twilio-Signature",
			SkipVerification: cfg.SkipWebhookVerification,
		},
		{
			Provider:         "retell",
			Scheme:           inbound.HexSHA256,
			Secret:           cfg.RetellWebhookSecret,
			Header:           "X-Retell-Signature",
			SkipVerification: cfg.SkipWebhookVerification,
		},
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}

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
	"github.com/frontdeskhq/resilience/metrics"
	"github.com/frontdeskhq/resilience/retry"
	retryredis "github.com/frontdeskhq/resilience/retry/redis"
	"github.com/frontdeskhq/resilience/webhook"
	webhookredis "github.com/frontdeskhq/resilience/webhook/redis"
)

/* Replay worker for failed webhook deliveries.
 * Runs separately from the API so replay pressure never competes with
 * request handling. Outbound rows are redelivered through the dispatcher's
 * delivery path; inbound rows are reprocessed. Scaling out is safe: the
 * claim lease keeps workers off each other's rows.
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

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "resilience-retryworker").Logger()

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

	registry := webhookredis.NewRegistryWithClient(client)
	defer registry.Close(ctx)
	failures := retryredis.NewStoreWithClient(client)

	dispatcher := webhook.NewDispatcher(registry, failures, logger,
		webhook.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.DeliveryTimeoutSeconds) * time.Second}),
	)
	processor := inbound.ProcessorFunc(inbound.ValidateJSON)

	workerConfig := retry.DefaultWorkerConfig()
	workerConfig.Interval = time.Duration(cfg.RetryIntervalSeconds) * time.Second
	workerConfig.Lease = time.Duration(cfg.RetryLeaseSeconds) * time.Second
	workerConfig.MaxAttempts = cfg.RetryMaxAttempts
	workerConfig.BackoffBase = time.Duration(cfg.RetryBaseSeconds) * time.Second

	worker := retry.NewWorker(failures, replayer(registry, dispatcher, processor), workerConfig, logger,
		retry.WithWorkerRecorder(recorder))

	fmt.Printf("Replaying failed deliveries every %s\n", workerConfig.Interval)
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		fmt.Println(err)
	}
}

// replayer routes a claimed failure back through the path that produced it.
func replayer(registry webhook.Reader, dispatcher *webhook.Dispatcher, processor inbound.Processor) retry.Replayer {
	return retry.ReplayerFunc(func(ctx context.Context, failure retry.FailedDelivery) error {
		switch failure.Source {
		case retry.Outbound:
			sub, err := registry.Get(ctx, failure.SubscriptionID)
			if err != nil {
				return fmt.Errorf("loading subscription: %w", err)
			}
			if !sub.IsActive {
				// Deactivated since the failure; delivering now would
				// violate the tenant's configuration.
				return nil
			}
			return dispatcher.Deliver(ctx, sub, webhook.EventType(failure.EventType), failure.Payload)
		case retry.Inbound:
			return processor.Process(ctx, failure.Provider, failure.Payload)
		default:
			return fmt.Errorf("unknown failure source: %d", failure.Source)
		}
	})
}

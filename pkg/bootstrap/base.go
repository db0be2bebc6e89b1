package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"claimant-consumer/internal/broker"
	"claimant-consumer/internal/config"
	"claimant-consumer/internal/logger"
)

type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Consumer *broker.FranzConsumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker creates the consumer and checks that the cluster answers.
func (b *Base) InitBroker(ctx context.Context) error {
	consumer, err := broker.NewConsumer(b.Config.Broker.Kafka, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := consumer.Ping(ctx); err != nil {
		return multierr.Append(
			fmt.Errorf("failed to reach kafka: %w", err),
			consumer.Close(),
		)
	}

	b.Consumer = consumer
	return nil
}

// Shutdown releases everything the base owns, then runs additionalShutdown.
// The consumer is usually closed by the orchestrator already; closing it
// again is harmless.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) error) error {
	b.Logger.Info("Shutting down application...")

	var errs error
	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if additionalShutdown != nil {
		errs = multierr.Append(errs, additionalShutdown(ctx))
	}

	if errs != nil {
		return fmt.Errorf("shutdown errors: %w", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}

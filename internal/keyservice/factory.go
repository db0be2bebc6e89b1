package keyservice

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sony/gobreaker"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/circuitbreaker"
	"claimant-consumer/pkg/retry"
)

const localKeyID = "local-master-key"

// New assembles the configured key service with its caller side policies,
// outermost first: cache, retry, circuit breaker, rate limit, metrics.
func New(ctx context.Context, cfg config.KeyServiceConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (Service, error) {
	var svc Service

	switch cfg.Type {
	case constants.KeyServiceKMS:
		client, err := NewKMSClient(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		svc = NewKMSService(client, cfg.CMKAlias, cfg.DataKeySpec)
	case constants.KeyServiceLocal:
		masterKey, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode master key: %w", err)
		}
		local, err := NewLocalService(localKeyID, masterKey)
		if err != nil {
			return nil, err
		}
		svc = local
	default:
		return nil, fmt.Errorf("unknown key service type: %s", cfg.Type)
	}

	svc = NewInstrumentedService(svc)

	if cfg.RateLimit.Enabled {
		svc = NewLimitedService(svc, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	if cbCfg.Enabled {
		breaker := circuitbreaker.NewWrapper(circuitbreaker.Config{
			Name:         "keyservice",
			MaxRequests:  cbCfg.MaxRequests,
			Interval:     cbCfg.Interval,
			Timeout:      cbCfg.Timeout,
			FailureRatio: cbCfg.FailureRatio,
			MinRequests:  cbCfg.MinRequests,
			IsSuccessful: func(err error) bool { return !IsUnavailable(err) },
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("key service circuit breaker changed state", "from", from.String(), "to", to.String())
			},
		})
		svc = NewBreakerService(svc, breaker)
	}

	svc = NewRetryingService(svc, retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Multiplier:      cfg.Retry.Multiplier,
		MaxElapsedTime:  cfg.Retry.MaxElapsedTime,
	}, log)

	if cfg.Cache.Enabled {
		svc = NewCachingService(svc, cfg.Cache.Size, cfg.Cache.TTL)
	}

	return svc, nil
}

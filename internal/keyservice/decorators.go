package keyservice

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/circuitbreaker"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/retry"
)

// RetryingService retries calls that failed with ErrKeyServiceUnavailable.
type RetryingService struct {
	next   Service
	policy retry.Policy
	logger logger.Logger
}

func NewRetryingService(next Service, policy retry.Policy, log logger.Logger) *RetryingService {
	return &RetryingService{next: next, policy: policy, logger: log}
}

func (s *RetryingService) IssueDataKey(ctx context.Context) (DataKey, error) {
	var key DataKey
	err := retry.Do(ctx, s.policy, func() error {
		var err error
		key, err = s.next.IssueDataKey(ctx)
		return err
	}, s.onRetry(ctx, "issue"))
	return key, err
}

func (s *RetryingService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	var plaintext []byte
	err := retry.Do(ctx, s.policy, func() error {
		var err error
		plaintext, err = s.next.ResolveDataKey(ctx, keyID, handle)
		return err
	}, s.onRetry(ctx, "resolve"))
	return plaintext, err
}

func (s *RetryingService) onRetry(ctx context.Context, op string) retry.OnRetry {
	return func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRetryAttempt("keyservice_" + op)
		s.logger.WarnwCtx(ctx, "key service call failed, retrying",
			"operation", op,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	}
}

// BreakerService stops calling the key service while it keeps failing.
type BreakerService struct {
	next    Service
	breaker *circuitbreaker.Wrapper
}

func NewBreakerService(next Service, breaker *circuitbreaker.Wrapper) *BreakerService {
	return &BreakerService{next: next, breaker: breaker}
}

func (s *BreakerService) IssueDataKey(ctx context.Context) (DataKey, error) {
	res, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.next.IssueDataKey(ctx)
	})
	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return DataKey{}, unavailable("issue", err)
		}
		return DataKey{}, err
	}
	return res.(DataKey), nil
}

func (s *BreakerService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	res, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.next.ResolveDataKey(ctx, keyID, handle)
	})
	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return nil, unavailable("resolve", err)
		}
		return nil, err
	}
	return res.([]byte), nil
}

// IsUnavailable reports whether err means the key service could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrKeyServiceUnavailable)
}

// LimitedService keeps the request rate under the key service quota.
type LimitedService struct {
	next    Service
	limiter *rate.Limiter
}

func NewLimitedService(next Service, rps float64, burst int) *LimitedService {
	if burst < 1 {
		burst = 1
	}
	return &LimitedService{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (s *LimitedService) IssueDataKey(ctx context.Context) (DataKey, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return DataKey{}, unavailable("issue", err)
	}
	return s.next.IssueDataKey(ctx)
}

func (s *LimitedService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, unavailable("resolve", err)
	}
	return s.next.ResolveDataKey(ctx, keyID, handle)
}

// CachingService remembers resolved data keys. Issued keys are never cached.
type CachingService struct {
	next  Service
	cache *expirable.LRU[string, []byte]
}

func NewCachingService(next Service, size int, ttl time.Duration) *CachingService {
	return &CachingService{next: next, cache: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *CachingService) IssueDataKey(ctx context.Context) (DataKey, error) {
	return s.next.IssueDataKey(ctx)
}

func (s *CachingService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	cacheKey := keyID + "/" + hex.EncodeToString(handle)
	if plaintext, ok := s.cache.Get(cacheKey); ok {
		metrics.IncKeyCacheLookup(true)
		return plaintext, nil
	}
	metrics.IncKeyCacheLookup(false)

	plaintext, err := s.next.ResolveDataKey(ctx, keyID, handle)
	if err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey, plaintext)
	return plaintext, nil
}

// InstrumentedService records call counts and latency.
type InstrumentedService struct {
	next Service
}

func NewInstrumentedService(next Service) *InstrumentedService {
	return &InstrumentedService{next: next}
}

func (s *InstrumentedService) IssueDataKey(ctx context.Context) (DataKey, error) {
	start := time.Now()
	key, err := s.next.IssueDataKey(ctx)
	metrics.ObserveKeyService("issue", metrics.Status(err), time.Since(start))
	return key, err
}

func (s *InstrumentedService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	start := time.Now()
	plaintext, err := s.next.ResolveDataKey(ctx, keyID, handle)
	metrics.ObserveKeyService("resolve", metrics.Status(err), time.Since(start))
	return plaintext, err
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives retry and breaker events for one upstream.
type Observer interface {
	RetryAttempt(upstream, operation string)
	BreakerStateChanged(upstream, operation, state string)
}

// Executor guards the calls to one upstream service (openai, ollama,
// tavily). Each call names its class, which selects the retry policy, and an
// operation, which selects the circuit breaker.
type Executor struct {
	upstream string
	policies Policies
	observer Observer
	logger   *zap.Logger
	spread   func() float64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewExecutor builds an executor for upstream. Nil policies use
// DefaultPolicies and a nil observer drops events.
func NewExecutor(upstream string, policies Policies, observer Observer, logger *zap.Logger) *Executor {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		upstream: strings.TrimSpace(upstream),
		policies: policies,
		observer: observer,
		logger:   logger.With(zap.String("upstream", upstream)),
		spread:   rand.Float64,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the class policy. A nil executor runs fn once.
func (e *Executor) Execute(
	ctx context.Context,
	class CallClass,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	if e == nil {
		return fn(ctx)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = string(class)
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	policy := e.policies.For(class)

	if !policy.BreakerEnabled {
		return e.executeWithRetry(ctx, policy, op, fn, classifier)
	}
	breaker := e.circuitBreaker(policy, op, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.executeWithRetry(ctx, policy, op, fn, classifier)
	})
	return err
}

func (e *Executor) executeWithRetry(
	ctx context.Context,
	policy Policy,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.attempt(ctx, policy, fn)
		if err == nil {
			return nil
		}
		// A spent per-attempt deadline is retried while the caller is still waiting.
		timedOut := policy.AttemptTimeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
		if !(timedOut || classifier(err).Retryable) || attempt >= policy.MaxAttempts {
			return err
		}

		wait := policy.backoff(attempt, e.spread())
		if hint, ok := RetryAfter(err); ok {
			if hint > policy.MaxRetryAfter {
				e.logger.Warn("retry_after_too_long",
					zap.String("operation", operation),
					zap.Duration("retry_after", hint),
					zap.Duration("max_retry_after", policy.MaxRetryAfter),
				)
				return err
			}
			if hint > wait {
				wait = hint
			}
		}

		e.logger.Warn("retry_attempt",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if e.observer != nil {
			e.observer.RetryAttempt(e.upstream, operation)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Executor) attempt(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	if policy.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (e *Executor) circuitBreaker(policy Policy, operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        e.upstream + "." + operation,
		MaxRequests: policy.BreakerHalfOpenCalls,
		Timeout:     policy.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= policy.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if e.observer != nil {
				e.observer.BreakerStateChanged(e.upstream, operation, to.String())
			}
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

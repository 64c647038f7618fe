package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// StateListener observes circuit breaker transitions.
type StateListener func(dependency, operation string, from, to gobreaker.State)

// Executor runs outbound calls under the policy of their dependency. Every
// dependency and operation pair gets its own breaker, so an exhausted
// generation quota never blocks query embedding.
type Executor struct {
	policies Policies

	mu       sync.Mutex
	listener StateListener
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policies Policies) *Executor {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Executor{
		policies: policies,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// OnStateChange registers listener for breakers created after the call.
func (e *Executor) OnStateChange(listener StateListener) {
	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()
}

// Policy reports the effective policy of dependency.
func (e *Executor) Policy(dependency string) Policy {
	return e.policies.For(dependency)
}

func (e *Executor) Execute(
	ctx context.Context,
	dependency string,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s callback is nil", dependency)
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "call"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	policy := e.Policy(dependency)
	attempt := func() error {
		return e.retry(ctx, dependency, operation, policy, fn, classifier)
	}
	if !policy.BreakerEnabled {
		return attempt()
	}
	_, err := e.breaker(dependency, operation, policy, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, attempt()
	})
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	dependency, operation string,
	policy Policy,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= policy.Attempts || !classifier(err).Retryable {
			return err
		}

		wait := policy.backoff(attempt)
		slog.Warn("dependency_retry",
			"dependency", dependency,
			"operation", operation,
			"attempt", attempt,
			"max_attempts", policy.Attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if !sleepCtx(ctx, wait) {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(dependency, operation string, policy Policy, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	key := dependency + "/" + operation

	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[key]; ok {
		return cb
	}
	listener := e.listener

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        key,
		MaxRequests: policy.BreakerHalfOpenCalls,
		Timeout:     policy.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change",
				"dependency", dependency,
				"operation", operation,
				"from", from.String(),
				"to", to.String(),
			)
			if listener != nil {
				listener(dependency, operation, from, to)
			}
		},
	})
	e.breakers[key] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/metrics"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerConfig tunes a CircuitBreaker
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a half-open trial
	Cooldown time.Duration
}

// CircuitBreaker guards calls to a flaky dependency so an outage fails fast
type CircuitBreaker struct {
	name    string
	cfg     BreakerConfig
	metrics *metrics.Metrics
	now     func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker creates a closed breaker. Zero config values get defaults (3 failures, 10s).
func NewCircuitBreaker(name string, cfg BreakerConfig, m *metrics.Metrics) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &CircuitBreaker{
		name:    name,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		state:   CircuitBreakerClosed,
	}
}

// Execute runs fn unless the circuit is open
func (b *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if !b.allow() {
		logger.Debug("Circuit breaker open - request blocked",
			zap.String("breaker", b.name),
			zap.String("operation", operation),
		)
		return ErrCircuitOpen
	}

	err := fn(ctx)
	b.record(operation, err)
	return err
}

// State returns the current circuit breaker state
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.setState(CircuitBreakerHalfOpen)
		b.trialInFlight = true
		return true
	case CircuitBreakerHalfOpen:
		// One trial at a time
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

func (b *CircuitBreaker) record(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false

	if err == nil {
		if b.state != CircuitBreakerClosed {
			logger.Info("Circuit breaker CLOSED - dependency recovered",
				zap.String("breaker", b.name),
				zap.String("operation", operation),
			)
		}
		b.consecutiveFailures = 0
		b.setState(CircuitBreakerClosed)
		return
	}

	b.consecutiveFailures++
	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Warn("Circuit breaker OPEN - too many consecutive failures",
				zap.String("breaker", b.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.String("error_type", ClassifyError(err)),
			)
		}
		b.openedAt = b.now()
		b.setState(CircuitBreakerOpen)
	}
}

// setState must be called with mu held
func (b *CircuitBreaker) setState(state CircuitBreakerState) {
	b.state = state
	switch state {
	case CircuitBreakerClosed:
		b.metrics.SetBreakerState(b.name, 0)
	case CircuitBreakerHalfOpen:
		b.metrics.SetBreakerState(b.name, 1)
	case CircuitBreakerOpen:
		b.metrics.SetBreakerState(b.name, 2)
	}
}

// ClassifyError buckets errors for logs and metrics labels
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_breaker"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "status 429") || strings.Contains(errMsg, "quota"):
		return "rate_limited"
	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "status 403") || strings.Contains(errMsg, "status 401"):
		return "permission"
	default:
		return "unknown"
	}
}

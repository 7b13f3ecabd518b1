// Package resilience guards calls to flaky backing stores.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"pulsechat-backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

func (s CircuitBreakerState) gaugeValue() float64 {
	switch s {
	case CircuitBreakerHalfOpen:
		return 1
	case CircuitBreakerOpen:
		return 2
	}
	return 0
}

// Config tunes a CircuitBreaker
type Config struct {
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before one trial call is let through
	Cooldown time.Duration
}

// DefaultConfig opens after 3 failures and retries after 10s
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, Cooldown: 10 * time.Second}
}

type breakerMetrics struct {
	requests *prometheus.CounterVec
	state    prometheus.Gauge
}

// CircuitBreaker fails fast after repeated failures of a dependency
type CircuitBreaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	openedAt    time.Time
	trialActive bool

	metrics *breakerMetrics
}

// NewCircuitBreaker creates a closed breaker for the named dependency. reg may be nil.
func NewCircuitBreaker(name string, cfg Config, reg prometheus.Registerer) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}

	cb := &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: CircuitBreakerClosed,
	}
	if reg != nil {
		factory := promauto.With(reg)
		labels := prometheus.Labels{"dependency": name}
		cb.metrics = &breakerMetrics{
			requests: factory.NewCounterVec(prometheus.CounterOpts{
				Name:        "circuit_breaker_requests_total",
				Help:        "Calls guarded by a circuit breaker by result",
				ConstLabels: labels,
			}, []string{"result"}),
			state: factory.NewGauge(prometheus.GaugeOpts{
				Name:        "circuit_breaker_state",
				Help:        "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
				ConstLabels: labels,
			}),
		}
	}
	return cb
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if !cb.admit() {
		cb.record("rejected")
		return ErrCircuitOpen
	}

	err := fn(ctx)
	cb.complete(operation, err)
	if err != nil {
		cb.record("failure")
	} else {
		cb.record("success")
	}
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentLocked() {
	case CircuitBreakerOpen:
		return false
	case CircuitBreakerHalfOpen:
		if cb.trialActive {
			return false
		}
		cb.trialActive = true
	}
	return true
}

// currentLocked moves an open circuit to half open once the cooldown passed
func (cb *CircuitBreaker) currentLocked() CircuitBreakerState {
	if cb.state == CircuitBreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.setStateLocked(CircuitBreakerHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) complete(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == CircuitBreakerHalfOpen
	cb.trialActive = false

	if err == nil {
		cb.failures = 0
		if cb.state != CircuitBreakerClosed {
			cb.setStateLocked(CircuitBreakerClosed)
			logger.Info("Circuit breaker closed",
				zap.String("dependency", cb.name),
				zap.String("operation", operation))
		}
		return
	}

	cb.failures++
	if wasTrial || cb.failures >= cb.cfg.FailureThreshold {
		if cb.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker opened",
				zap.String("dependency", cb.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", cb.failures),
				zap.Error(err))
		}
		cb.openedAt = cb.now()
		cb.setStateLocked(CircuitBreakerOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(state CircuitBreakerState) {
	cb.state = state
	if cb.metrics != nil {
		cb.metrics.state.Set(state.gaugeValue())
	}
}

func (cb *CircuitBreaker) record(result string) {
	if cb.metrics != nil {
		cb.metrics.requests.WithLabelValues(result).Inc()
	}
}

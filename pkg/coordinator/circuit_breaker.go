package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig configures the circuit breaker behavior
type CircuitBreakerConfig struct {
	// MaxConsecutiveFailures is the number of consecutive failures before
	// opening. Zero disables the breaker.
	MaxConsecutiveFailures uint32
	// Timeout is how long the circuit breaker stays open before trying half-open
	Timeout time.Duration
}

// Enabled reports whether the breaker should wrap the API
func (c CircuitBreakerConfig) Enabled() bool {
	return c.MaxConsecutiveFailures > 0
}

// CircuitBreakerState represents the circuit breaker state
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the state name
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// circuitBreakerAPI wraps GardenAPI with circuit breaker protection
type circuitBreakerAPI struct {
	api     GardenAPI
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGardenAPIWithCircuitBreaker wraps api with a breaker. When cfg is
// disabled api is returned unchanged.
func NewGardenAPIWithCircuitBreaker(api GardenAPI, cfg CircuitBreakerConfig, log *logger.Logger) GardenAPI {
	if !cfg.Enabled() {
		return api
	}
	log = logger.OrDiscard(log)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "RiseGardensAPI",
		MaxRequests: 1,
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &circuitBreakerAPI{
		api:     api,
		breaker: cb,
		timeout: cfg.Timeout,
	}
}

// ListGardens implements GardenAPI.ListGardens with circuit breaker protection
func (cb *circuitBreakerAPI) ListGardens(ctx context.Context) (*garden.GardenList, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.api.ListGardens(ctx)
	})
	if err != nil {
		return nil, cb.wrapError(err)
	}
	return result.(*garden.GardenList), nil
}

// GardensDeviceData implements GardenAPI.GardensDeviceData with circuit breaker protection
func (cb *circuitBreakerAPI) GardensDeviceData(ctx context.Context) (garden.DeviceData, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.api.GardensDeviceData(ctx)
	})
	if err != nil {
		return nil, cb.wrapError(err)
	}
	return result.(garden.DeviceData), nil
}

// wrapError converts breaker errors to readable messages
func (cb *circuitBreakerAPI) wrapError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("circuit breaker is open: API is temporarily unavailable (will retry after %v)", cb.timeout)
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker is half-open: testing API recovery")
	}
	return err
}

// State returns the current circuit breaker state
func (cb *circuitBreakerAPI) State() CircuitBreakerState {
	switch cb.breaker.State() {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// BreakerState names the state of the breaker wrapping api, or "disabled"
// when api is not wrapped
func BreakerState(api GardenAPI) string {
	cb, ok := api.(*circuitBreakerAPI)
	if !ok {
		return "disabled"
	}
	return cb.State().String()
}

package hris

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"go.uber.org/zap"
)

const breakerName = "HRIS"

// NewBreaker builds the circuit breaker guarding every HRIS call. It trips
// on transport failures and 5xx answers only; a rejected login or an
// expired token is a healthy server saying no.
func NewBreaker(cfg config.CBConfig, metrics *observability.Metrics, logger *observability.Logger) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name: breakerName,
		// MaxRequests is used for half-open state, not max failures
		MaxRequests: cfg.MaxFailures,
		// Closed-state counts are cleared every Interval so the ratio reflects
		// recent traffic only.
		Interval: cfg.Interval,
		Timeout:  cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.MaxFailures {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn(context.Background(), "Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from_state", from.String()),
					zap.String("to_state", to.String()),
					zap.Time("timestamp", time.Now()),
				)
			}

			// Record state as metric (0=closed, 0.5=half_open, 1=open)
			stateValue := 0.0
			switch to {
			case gobreaker.StateOpen:
				stateValue = 1.0
			case gobreaker.StateHalfOpen:
				stateValue = 0.5
			}
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue)
				metrics.CircuitBreakerEvents.WithLabelValues(name, "state_change", from.String()+"_to_"+to.String()).Inc()
			}
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}

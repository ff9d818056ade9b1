package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jhoicas/stock-engine/pkg/logger"
)

// ErrCircuitOpen el breaker rechazó la llamada sin ejecutarla.
var ErrCircuitOpen = errors.New("circuito abierto")

// BreakerConfig configuración del circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // peticiones permitidas en half-open
	Interval         time.Duration // ventana para limpiar contadores (0 = nunca)
	Timeout          time.Duration // tiempo en open antes de pasar a half-open
	FailureThreshold uint32        // fallos consecutivos para abrir
	// IsFailure decide qué errores cuentan como fallo. nil = todos.
	IsFailure func(error) bool
}

// DefaultBreakerConfig valores por defecto.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker envoltorio de gobreaker con log de cambios de estado.
type Breaker struct {
	cb       *gobreaker.CircuitBreaker
	name     string
	onChange func(name string, to gobreaker.State)
}

// NewBreaker construye el breaker. onChange es opcional (métricas).
func NewBreaker(cfg BreakerConfig, log *logger.Logger, onChange func(name string, to gobreaker.State)) *Breaker {
	b := &Breaker{name: cfg.Name, onChange: onChange}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker cambió de estado")
			if b.onChange != nil {
				b.onChange(name, to)
			}
		},
	}
	if cfg.IsFailure != nil {
		isFailure := cfg.IsFailure
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute ejecuta fn a través del breaker.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}
	return err
}

// State estado actual (closed, half-open, open).
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// RetryConfig configuración de reintentos con backoff exponencial.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable decide si un error merece otro intento. nil = ninguno.
	Retryable func(error) bool
}

// DefaultRetryConfig valores por defecto.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}
}

// Retry ejecuta fn hasta MaxAttempts veces mientras el error sea reintentable.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable == nil || !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// ServiceBreaker wraps gobreaker with sipbox defaults. Watch mode puts one
// around mkcert so a broken install is not re-invoked on every cycle.
type ServiceBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// BreakerOption configures a ServiceBreaker
type BreakerOption func(*gobreaker.Settings)

// WithTimeout sets the period of the open state before becoming half-open
func WithTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

// WithFailureThreshold sets the number of consecutive failures before opening
func WithFailureThreshold(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithOnStateChange sets a callback for state changes
func WithOnStateChange(fn func(name string, from, to string)) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = func(name string, from, to gobreaker.State) {
			fn(name, from.String(), to.String())
		}
	}
}

// NewServiceBreaker creates a circuit breaker. Defaults: trip after 3
// consecutive failures, stay open for 5 minutes, one probe request in
// half-open state.
func NewServiceBreaker(name string, opts ...BreakerOption) *ServiceBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	for _, opt := range opts {
		opt(&settings)
	}

	return &ServiceBreaker{
		cb:   gobreaker.NewCircuitBreaker[any](settings),
		name: name,
	}
}

// Execute runs an operation through the circuit breaker. Returns an error if
// the circuit is open or the operation fails.
func (b *ServiceBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// State returns the current state of the circuit breaker
func (b *ServiceBreaker) State() string {
	return b.cb.State().String()
}

// IsOpen returns true if the circuit is open (blocking requests)
func (b *ServiceBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Name returns the name of the circuit breaker
func (b *ServiceBreaker) Name() string {
	return b.name
}

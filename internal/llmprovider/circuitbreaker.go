package llmprovider

import (
	"context"

	sqlragerrors "github.com/sqlrag/engine/internal/errors"
)

// CircuitBreakerClient wraps a Client with a circuit breaker: once the
// wrapped client has failed enough times in a row, calls fail fast with
// sqlragerrors.ErrCircuitOpen instead of piling retries onto a downed LLM
// backend, and the breaker probes again after its reset timeout.
type CircuitBreakerClient struct {
	Client
	breaker *sqlragerrors.CircuitBreaker
}

// WithCircuitBreaker wraps client with a named circuit breaker using
// sqlragerrors.NewCircuitBreaker's default trip threshold (5 failures) and
// reset timeout (30s).
func WithCircuitBreaker(client Client, name string) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		Client:  client,
		breaker: sqlragerrors.NewCircuitBreaker(name),
	}
}

// Generate runs the wrapped client's Generate call through the circuit
// breaker. internal/llmprovider's per-call retry already handles transient
// 5xx/429 responses; the breaker guards against a backend that is down for
// longer than any single call's retry budget.
func (c *CircuitBreakerClient) Generate(ctx context.Context, req Request) (*Response, error) {
	return sqlragerrors.CircuitExecuteWithResult(c.breaker,
		func() (*Response, error) { return c.Client.Generate(ctx, req) },
		func() (*Response, error) { return nil, sqlragerrors.ErrCircuitOpen },
	)
}

// BreakerState reports the circuit's current state, for health/status
// reporting alongside ModelName and Available.
func (c *CircuitBreakerClient) BreakerState() sqlragerrors.State {
	return c.breaker.State()
}

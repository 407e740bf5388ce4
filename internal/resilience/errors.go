// Package resilience provides the fault-tolerance policies composed around
// outbound provider calls: bulkhead, retry and circuit breaker. Each policy
// is an explicitly constructed component with its own configuration; the
// caller owns the composition order.
package resilience

import "errors"

var (
	// ErrCapacityExceeded is returned when the bulkhead wait times out.
	ErrCapacityExceeded = errors.New("capacity_exceeded")
	// ErrCircuitOpen is returned while the breaker rejects calls outright.
	ErrCircuitOpen = errors.New("circuit_open")
)

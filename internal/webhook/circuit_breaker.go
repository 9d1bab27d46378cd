package webhook

import (
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type endpointHealth struct {
	failures    int
	lastFailure time.Time
	state       circuitState
}

// CircuitBreaker stops deliveries to an endpoint after repeated failed
// deliveries, then lets a single probe through once recovery has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	endpoints        map[string]*endpointHealth
	failureThreshold int
	recoveryTime     time.Duration
	now              func() time.Time
}

func NewCircuitBreaker(failureThreshold int, recoveryTime time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		endpoints:        make(map[string]*endpointHealth),
		failureThreshold: failureThreshold,
		recoveryTime:     recoveryTime,
		now:              time.Now,
	}
}

func (cb *CircuitBreaker) Allow(endpoint string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	h, ok := cb.endpoints[endpoint]
	if !ok {
		return true
	}

	switch h.state {
	case stateOpen:
		if cb.now().Sub(h.lastFailure) < cb.recoveryTime {
			return false
		}
		h.state = stateHalfOpen
		return true
	case stateHalfOpen:
		// one probe at a time
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.endpoints, endpoint)
}

func (cb *CircuitBreaker) RecordFailure(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	h, ok := cb.endpoints[endpoint]
	if !ok {
		h = &endpointHealth{}
		cb.endpoints[endpoint] = h
	}

	h.failures++
	h.lastFailure = cb.now()
	if h.state == stateHalfOpen || h.failures >= cb.failureThreshold {
		h.state = stateOpen
	}
}

// State returns "closed", "open" or "half_open".
func (cb *CircuitBreaker) State(endpoint string) string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if h, ok := cb.endpoints[endpoint]; ok {
		return h.state.String()
	}
	return stateClosed.String()
}

package middleware

import "sync"

// circuitBreaker tracks consecutive limiter errors. After failureThreshold
// errors in a row the circuit opens and checks go to the fallback limiter; it
// closes again after successThreshold consecutive primary successes.
type circuitBreaker struct {
	mu               sync.Mutex
	open             bool
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
}

func newCircuitBreaker(failureThreshold, successThreshold int) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
	}
}

func (c *circuitBreaker) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// recordFailure reports whether the circuit is open after the failure.
func (c *circuitBreaker) recordFailure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	c.successCount = 0
	if c.failureCount >= c.failureThreshold {
		c.open = true
	}
	return c.open
}

// recordSuccess reports whether the circuit is closed after the success.
func (c *circuitBreaker) recordSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		c.failureCount = 0
		return true
	}
	c.successCount++
	if c.successCount >= c.successThreshold {
		c.open = false
		c.failureCount = 0
		c.successCount = 0
	}
	return !c.open
}

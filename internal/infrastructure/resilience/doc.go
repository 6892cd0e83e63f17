/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

The device client wraps every call to a queue device server in a Breaker so
that a server that stops answering fails fast instead of stalling callers.
Errors the server reports on purpose (busy, overflow and the rest of the
device taxonomy) are classified as successes through Settings.IsSuccessful and
never trip the breaker.

# Usage

	// Create a circuit breaker
	breaker := resilience.New("queuedev", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	// Run a call through the breaker
	resp, err := resilience.Do(breaker, func() (*resty.Response, error) {
		return req.Post(url)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience

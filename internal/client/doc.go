// Package client is a Go client for the queue device server.
//
// Requests go through resty over a go-retryablehttp transport, a token bucket
// limiter and a circuit breaker. Only requests the server cannot have acted
// on are retried, so a write is never applied twice. Error responses come
// back as *APIError, which unwraps to the device sentinel named by its code:
//
//	n, err := c.Write(ctx, h.ID, data)
//	if errors.Is(err, device.ErrOverflow) {
//	    // nothing was queued, n == 0
//	}
package client

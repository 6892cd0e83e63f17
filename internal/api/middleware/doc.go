// Package middleware provides gin middleware for the device adapter:
// per-client rate limiting, request ID correlation and CORS.
package middleware

// Package main is the entry point for the queue device server.
//
// The server exposes one bounded FIFO byte queue device over HTTP. Callers
// open handles, write and read bytes through them, and switch the device
// between shared, exclusive and per-handle modes.
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -mode shared
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, closing every open handle
package main

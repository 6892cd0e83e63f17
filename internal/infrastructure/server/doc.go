// Package server provides HTTP server setup and initialization for the queue
// device.
//
// This package wires the components together:
//   - Zap logger from the logging section of the config
//   - Session manager holding the shared queue and the exclusive lock
//   - Prometheus metrics on a private registry, served at /metrics
//   - Gin router with recovery, request IDs, metrics and rate limiting
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger (production or development)
//  3. Create the session manager in the configured mode
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown on signal, closing every open handle
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server

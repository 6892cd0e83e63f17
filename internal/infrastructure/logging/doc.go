// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output at debug level
//
// Device lifecycle events (open, close, mode changes) log at Info, transfer
// counts at Debug, overflow and fault at Warn, allocation failures at Error.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	defer logger.Sync()
//	logger.Info("Device server starting", zap.String("port", "8000"))
package logging

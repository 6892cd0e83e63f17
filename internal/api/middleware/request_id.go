package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// TraceIDHeader carries a trace ID shared by every request of one caller
// operation. A request without one starts a trace named after its request ID.
const TraceIDHeader = "X-Trace-ID"

const (
	requestIDKey = "request_id"
	traceIDKey   = "trace_id"
)

// RequestID assigns every request an ID, propagates the caller's trace ID,
// echoes both in the response and logs the completed request with them.
func RequestID(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(rid); err != nil {
			rid = uuid.NewString()
		}
		trace := c.GetHeader(TraceIDHeader)
		if _, err := uuid.Parse(trace); err != nil {
			trace = rid
		}
		c.Set(requestIDKey, rid)
		c.Set(traceIDKey, trace)
		c.Header(RequestIDHeader, rid)
		c.Header(TraceIDHeader, trace)

		start := time.Now()
		c.Next()

		logger.Debug("Request handled",
			zap.String("request_id", rid),
			zap.String("trace_id", trace),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetTraceID returns the trace ID propagated by RequestID, or "".
func GetTraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}

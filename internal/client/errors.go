package client

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/session"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/monitoring"
)

// ErrRateLimited is returned when the server keeps rejecting requests for
// exceeding its rate limit
var ErrRateLimited = errors.New("rate limited")

// APIError is an error response from the server. It unwraps to the matching
// device sentinel, so errors.Is(err, device.ErrBusy) works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Count is the partial byte count the server reported, if any
	Count int
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "busy":
		return device.ErrBusy
	case "overflow":
		return device.ErrOverflow
	case "out_of_memory":
		return device.ErrOutOfMemory
	case "fault":
		return device.ErrFault
	case "invalid_argument":
		return device.ErrInvalidArgument
	case "closed":
		return device.ErrClosed
	case "not_found":
		return device.ErrNotFound
	case "rate_limited":
		return ErrRateLimited
	default:
		return nil
	}
}

// Stats is the body of GET /device/stats
type Stats struct {
	Device        session.Stats       `json:"device"`
	Traffic       monitoring.Snapshot `json:"traffic"`
	UptimeSeconds float64             `json:"uptime_seconds"`
}
